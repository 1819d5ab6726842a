package email

import (
	"context"
	"fmt"
	"net/http"

	"courier/internal/common"
	"courier/internal/domain/notification"

	"github.com/mrz1836/postmark"
)

var _ notification.Provider = (*PostmarkProvider)(nil)

// PostmarkConfig holds Postmark credentials and sender identity.
type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	FromAddress  string
	ReplyTo      string
	Tag          string
}

// PostmarkProvider sends emails using Postmark's transactional API.
type PostmarkProvider struct {
	client *postmark.Client
	config PostmarkConfig
}

// PostmarkOption configures a PostmarkProvider.
type PostmarkOption func(*PostmarkProvider)

// WithPostmarkBaseURL overrides the API endpoint.
func WithPostmarkBaseURL(url string) PostmarkOption {
	return func(p *PostmarkProvider) { p.client.BaseURL = url }
}

// WithPostmarkHTTPClient overrides the HTTP client.
func WithPostmarkHTTPClient(c *http.Client) PostmarkOption {
	return func(p *PostmarkProvider) { p.client.HTTPClient = c }
}

// NewPostmarkProvider creates a Postmark-backed email provider.
// Credentials are checked by Validate, not here.
func NewPostmarkProvider(cfg PostmarkConfig, opts ...PostmarkOption) *PostmarkProvider {
	p := &PostmarkProvider{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		config: cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *PostmarkProvider) Name() string { return "Postmark" }

// Channel returns the email channel identifier.
func (p *PostmarkProvider) Channel() notification.Channel {
	return notification.ChannelEmail
}

// Reachable reports whether the recipient has a valid email address.
func (p *PostmarkProvider) Reachable(r notification.Recipient) bool {
	return validAddress(r.Email)
}

// Send delivers a plain-text email through Postmark.
func (p *PostmarkProvider) Send(ctx context.Context, r notification.Recipient, msg notification.RenderedMessage) notification.Outcome {
	if !p.Reachable(r) {
		return notification.Failed(notification.ChannelEmail, "User email is not available", "no valid email address provided")
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.config.FromAddress,
		ReplyTo:  p.config.ReplyTo,
		To:       r.Email,
		Subject:  msg.Subject,
		Tag:      p.config.Tag,
		TextBody: msg.Body,
	})
	if err != nil {
		return notification.Failed(notification.ChannelEmail, "Postmark request failed", err.Error())
	}
	if resp.ErrorCode > 0 {
		return notification.Failed(notification.ChannelEmail, "Postmark API error",
			fmt.Sprintf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}

	return notification.Succeeded(notification.ChannelEmail, "Email sent to "+r.Email, map[string]string{
		"recipient":           r.Email,
		"subject":             msg.Subject,
		"provider_message_id": resp.MessageID,
	})
}

// Validate checks the sender settings and that the server token is accepted.
func (p *PostmarkProvider) Validate(ctx context.Context) error {
	if p.config.ServerToken == "" {
		return common.NewConfigurationError(p.Name(), "server token is required")
	}
	if !validAddress(p.config.FromAddress) {
		return common.NewConfigurationError(p.Name(), "invalid from address")
	}
	if p.config.ReplyTo != "" && !validAddress(p.config.ReplyTo) {
		return common.NewConfigurationError(p.Name(), "invalid reply-to address")
	}

	server, err := p.client.GetCurrentServer(ctx)
	if err != nil {
		return common.WrapConfigurationError(p.Name(), "configuration validation failed", err)
	}
	if server.Name == "" {
		return common.NewConfigurationError(p.Name(), "server token was not accepted")
	}

	return nil
}
