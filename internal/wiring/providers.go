package wiring

import (
	"log/slog"
	"strings"
	"time"

	"courier/internal/common"
	"courier/internal/config"
	"courier/internal/domain/notification"
	"courier/internal/infra/email"
	"courier/internal/infra/sms"
	"courier/internal/infra/telegram"
)

// BuildProviders creates the providers whose credentials are present, in
// the configured channel order. Channels without credentials are skipped
// with a warning. It fails only when no provider could be built.
func BuildProviders(cfg *config.Config, logger *slog.Logger) ([]notification.Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var providers []notification.Provider
	seen := make(map[notification.Channel]bool)

	for _, ch := range cfg.ProviderOrder() {
		if seen[ch] {
			continue
		}
		seen[ch] = true

		p, err := buildProvider(cfg, ch)
		if err != nil {
			logger.Warn("provider not configured", "channel", ch, "error", err)
			continue
		}
		providers = append(providers, p)
		logger.Info("provider configured", "channel", ch, "provider", p.Name())
	}

	if len(providers) == 0 {
		return nil, common.NewConfigurationError("", "no notification providers configured")
	}
	return providers, nil
}

func buildProvider(cfg *config.Config, ch notification.Channel) (notification.Provider, error) {
	switch ch {
	case notification.ChannelEmail:
		return buildEmail(cfg.Email)
	case notification.ChannelSMS:
		return buildSMS(cfg.SMS)
	case notification.ChannelTelegram:
		return buildTelegram(cfg.Telegram)
	default:
		return nil, common.NewConfigurationError(string(ch), "unknown channel")
	}
}

func buildEmail(c config.EmailConfig) (notification.Provider, error) {
	switch strings.ToLower(c.Provider) {
	case "postmark":
		if c.PostmarkServerToken == "" {
			return nil, common.NewConfigurationError("Postmark", "server token is not set")
		}
		return email.NewPostmarkProvider(email.PostmarkConfig{
			ServerToken:  c.PostmarkServerToken,
			AccountToken: c.PostmarkAccountToken,
			FromAddress:  c.FromAddress,
			ReplyTo:      c.ReplyTo,
		}), nil
	case "", "resend":
		if c.APIKey == "" {
			return nil, common.NewConfigurationError("Resend", "api key is not set")
		}
		return email.NewResendProvider(c.APIKey, c.FromAddress, c.FromName), nil
	default:
		return nil, common.NewConfigurationError(c.Provider, "unsupported email provider")
	}
}

func buildSMS(c config.SMSConfig) (notification.Provider, error) {
	if c.AccountSID == "" || c.AuthToken == "" {
		return nil, common.NewConfigurationError("SMS", "twilio credentials are not set")
	}
	var opts []sms.TwilioOption
	if c.BaseURL != "" {
		opts = append(opts, sms.WithTwilioBaseURL(c.BaseURL))
	}
	return sms.NewTwilioProvider(c.AccountSID, c.AuthToken, c.FromNumber, opts...), nil
}

func buildTelegram(c config.TelegramConfig) (notification.Provider, error) {
	if c.BotToken == "" {
		return nil, common.NewConfigurationError("Telegram", "bot token is not set")
	}
	p, err := telegram.New(telegram.Config{
		BotToken: c.BotToken,
		APIURL:   c.APIURL,
		Timeout:  time.Duration(c.TimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
