package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"courier/internal/common"
	"courier/internal/domain/notification"
)

const resendBaseURL = "https://api.resend.com"

var _ notification.Provider = (*ResendProvider)(nil)

// ResendProvider sends emails using the Resend API.
type ResendProvider struct {
	apiKey      string
	fromAddress string
	fromName    string
	baseURL     string
	httpClient  *http.Client
}

// ResendOption configures a ResendProvider.
type ResendOption func(*ResendProvider)

// WithResendBaseURL overrides the API endpoint.
func WithResendBaseURL(url string) ResendOption {
	return func(p *ResendProvider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithResendHTTPClient overrides the HTTP client.
func WithResendHTTPClient(c *http.Client) ResendOption {
	return func(p *ResendProvider) { p.httpClient = c }
}

// NewResendProvider creates a new Resend email provider.
func NewResendProvider(apiKey, fromAddress, fromName string, opts ...ResendOption) *ResendProvider {
	p := &ResendProvider{
		apiKey:      apiKey,
		fromAddress: fromAddress,
		fromName:    fromName,
		baseURL:     resendBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *ResendProvider) Name() string { return "Resend" }

// Channel returns the email channel identifier.
func (p *ResendProvider) Channel() notification.Channel {
	return notification.ChannelEmail
}

// Reachable reports whether the recipient has a valid email address.
func (p *ResendProvider) Reachable(r notification.Recipient) bool {
	return validAddress(r.Email)
}

// Send delivers an email via the Resend API.
func (p *ResendProvider) Send(ctx context.Context, r notification.Recipient, msg notification.RenderedMessage) notification.Outcome {
	if !p.Reachable(r) {
		return notification.Failed(notification.ChannelEmail, "User email is not available", "no valid email address provided")
	}

	from := p.fromAddress
	if p.fromName != "" {
		from = fmt.Sprintf("%s <%s>", p.fromName, p.fromAddress)
	}

	payload := map[string]any{
		"from":    from,
		"to":      []string{r.Email},
		"subject": msg.Subject,
		"text":    msg.Body,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return notification.Failed(notification.ChannelEmail, "Failed to build request", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/emails", bytes.NewBuffer(jsonData))
	if err != nil {
		return notification.Failed(notification.ChannelEmail, "Failed to build request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	status, respBody, err := p.do(req)
	if err != nil {
		return notification.Failed(notification.ChannelEmail, "Request failed", err.Error())
	}

	if status >= 400 {
		errMsg := resendErrorMessage(status, respBody)
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return notification.Failed(notification.ChannelEmail, "Authentication failed", errMsg)
		case http.StatusTooManyRequests:
			return notification.Failed(notification.ChannelEmail, "Rate limit exceeded", errMsg)
		default:
			return notification.Failed(notification.ChannelEmail, "Resend API error", errMsg)
		}
	}

	var successResp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &successResp); err != nil {
		return notification.Failed(notification.ChannelEmail, "Unexpected provider response", fmt.Sprintf("parsing resend response: %s", err))
	}

	return notification.Succeeded(notification.ChannelEmail, "Email sent to "+r.Email, map[string]string{
		"recipient":           r.Email,
		"subject":             msg.Subject,
		"provider_message_id": successResp.ID,
	})
}

// Validate checks the sender settings and that the API key is accepted.
func (p *ResendProvider) Validate(ctx context.Context) error {
	if p.apiKey == "" {
		return common.NewConfigurationError(p.Name(), "api key is required")
	}
	if !validAddress(p.fromAddress) {
		return common.NewConfigurationError(p.Name(), "invalid from address")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/domains", nil)
	if err != nil {
		return common.WrapConfigurationError(p.Name(), "creating request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	status, respBody, err := p.do(req)
	if err != nil {
		return common.WrapConfigurationError(p.Name(), "configuration validation failed", err)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return common.NewConfigurationError(p.Name(), "authentication failed")
	case status >= 400:
		return common.NewConfigurationError(p.Name(), resendErrorMessage(status, respBody))
	}

	return nil
}

func (p *ResendProvider) do(req *http.Request) (int, []byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

func resendErrorMessage(status int, body []byte) string {
	var errResp struct {
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
	}
	_ = json.Unmarshal(body, &errResp)

	if errResp.Message == "" {
		return fmt.Sprintf("resend API error: status %d", status)
	}
	return "resend: " + errResp.Message
}
