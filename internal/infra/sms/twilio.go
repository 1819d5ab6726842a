package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"courier/internal/common"
	"courier/internal/domain/notification"
)

const (
	twilioBaseURL = "https://api.twilio.com"

	// maxBodyRunes is the longest body Twilio accepts before we truncate;
	// longer texts are split into segments by the carrier.
	maxBodyRunes = 1600

	// Twilio error code for an invalid "To" number.
	codeInvalidNumber = 21614
)

var _ notification.Provider = (*TwilioProvider)(nil)

// TwilioProvider sends SMS messages through the Twilio REST API.
type TwilioProvider struct {
	accountSID string
	authToken  string
	fromPhone  string
	baseURL    string
	httpClient *http.Client
}

// TwilioOption configures a TwilioProvider.
type TwilioOption func(*TwilioProvider)

// WithTwilioBaseURL overrides the API endpoint.
func WithTwilioBaseURL(u string) TwilioOption {
	return func(p *TwilioProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithTwilioHTTPClient overrides the HTTP client.
func WithTwilioHTTPClient(c *http.Client) TwilioOption {
	return func(p *TwilioProvider) { p.httpClient = c }
}

// NewTwilioProvider creates a new Twilio SMS provider. fromPhone must be in
// E.164 form, e.g. "+15551234567".
func NewTwilioProvider(accountSID, authToken, fromPhone string, opts ...TwilioOption) *TwilioProvider {
	p := &TwilioProvider{
		accountSID: accountSID,
		authToken:  authToken,
		fromPhone:  fromPhone,
		baseURL:    twilioBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *TwilioProvider) Name() string { return "SMS" }

// Channel returns the SMS channel identifier.
func (p *TwilioProvider) Channel() notification.Channel {
	return notification.ChannelSMS
}

// Reachable reports whether the recipient has a plausible phone number.
func (p *TwilioProvider) Reachable(r notification.Recipient) bool {
	if r.Phone == "" {
		return false
	}
	phone := stripPhone(r.Phone)
	if len(phone) < 10 {
		return false
	}
	return strings.HasPrefix(phone, "+") || isDigits(phone)
}

// Send delivers the message body as an SMS. The subject is not sent.
func (p *TwilioProvider) Send(ctx context.Context, r notification.Recipient, msg notification.RenderedMessage) notification.Outcome {
	if !p.Reachable(r) {
		return notification.Failed(notification.ChannelSMS, "User phone number is not available", "no phone number provided")
	}

	to := NormalizePhone(r.Phone)
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", p.fromPhone)
	form.Set("Body", truncate(msg.Body, maxBodyRunes))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, url.PathEscape(p.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return notification.Failed(notification.ChannelSMS, "Failed to build request", err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := p.do(req)
	if err != nil {
		return notification.Failed(notification.ChannelSMS, "Request failed", err.Error())
	}

	if status >= 400 {
		apiErr := parseTwilioError(status, body)
		switch {
		case status == http.StatusUnauthorized:
			return notification.Failed(notification.ChannelSMS, "Authentication failed", "invalid Twilio credentials")
		case status == http.StatusTooManyRequests:
			return notification.Failed(notification.ChannelSMS, "Rate limit exceeded", "too many SMS requests")
		case apiErr.Code == codeInvalidNumber:
			return notification.Failed(notification.ChannelSMS, "Invalid phone number", apiErr.Error())
		default:
			return notification.Failed(notification.ChannelSMS, "Twilio API error", apiErr.Error())
		}
	}

	var created struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return notification.Failed(notification.ChannelSMS, "Unexpected provider response", fmt.Sprintf("parsing twilio response: %s", err))
	}

	return notification.Succeeded(notification.ChannelSMS, "SMS sent to "+to, map[string]string{
		"recipient":   to,
		"message_sid": created.SID,
		"status":      created.Status,
	})
}

// Validate checks credentials by fetching the account and requires it to
// be active.
func (p *TwilioProvider) Validate(ctx context.Context) error {
	if p.accountSID == "" || p.authToken == "" {
		return common.NewConfigurationError(p.Name(), "account sid and auth token are required")
	}
	if !strings.HasPrefix(p.fromPhone, "+") {
		return common.NewConfigurationError(p.Name(), "from phone number must start with '+'")
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s.json", p.baseURL, url.PathEscape(p.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return common.WrapConfigurationError(p.Name(), "creating request", err)
	}

	status, body, err := p.do(req)
	if err != nil {
		return common.WrapConfigurationError(p.Name(), "configuration validation failed", err)
	}
	if status == http.StatusUnauthorized {
		return common.NewConfigurationError(p.Name(), "invalid Twilio credentials")
	}
	if status >= 400 {
		return common.WrapConfigurationError(p.Name(), "twilio configuration error", parseTwilioError(status, body))
	}

	var account struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &account); err != nil {
		return common.WrapConfigurationError(p.Name(), "parsing account", err)
	}
	if account.Status != "active" {
		return common.NewConfigurationError(p.Name(), "twilio account status: "+account.Status)
	}

	return nil
}

func (p *TwilioProvider) do(req *http.Request) (int, []byte, error) {
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// twilioError is the error body returned by the Twilio REST API.
type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *twilioError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("twilio: %s", e.Message)
}

func parseTwilioError(status int, body []byte) *twilioError {
	e := &twilioError{Status: status}
	_ = json.Unmarshal(body, e)
	if e.Message == "" {
		e.Message = fmt.Sprintf("status %d", status)
	}
	return e
}
