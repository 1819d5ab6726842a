package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courier/internal/common"
	"courier/internal/domain/notification"

	tele "gopkg.in/telebot.v4"
)

const (
	defaultAPIURL = "https://api.telegram.org"

	// maxTextRunes is Telegram's limit for a single text message.
	maxTextRunes = 4096
)

var _ notification.Provider = (*Provider)(nil)

// Config holds the bot credentials.
type Config struct {
	BotToken string
	APIURL   string
	Timeout  time.Duration
}

// Provider delivers messages to Telegram chats through a bot.
type Provider struct {
	cfg Config
	bot *tele.Bot
}

// New creates an offline bot client. No request is made until Send or
// Validate is called.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, common.NewConfigurationError("Telegram", "bot token is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Token:   cfg.BotToken,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, common.WrapConfigurationError("Telegram", "creating bot", err)
	}

	return &Provider{cfg: cfg, bot: b}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return "Telegram" }

// Channel returns the Telegram channel identifier.
func (p *Provider) Channel() notification.Channel {
	return notification.ChannelTelegram
}

// Reachable reports whether the recipient has a numeric chat id.
func (p *Provider) Reachable(r notification.Recipient) bool {
	_, ok := chatID(r.TelegramChatID)
	return ok
}

// Send posts the message as Markdown to the recipient's chat.
func (p *Provider) Send(ctx context.Context, r notification.Recipient, msg notification.RenderedMessage) notification.Outcome {
	id, ok := chatID(r.TelegramChatID)
	if !ok {
		return notification.Failed(notification.ChannelTelegram, "User Telegram chat ID is not available", "no telegram chat id provided")
	}

	text := formatText(msg)

	type result struct {
		m   *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := p.bot.Send(&tele.Chat{ID: id}, text, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
		done <- result{m: m, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return notification.Failed(notification.ChannelTelegram, "Send timed out", ctx.Err().Error())
	}

	if res.err != nil {
		return failure(res.err)
	}

	metadata := map[string]string{"chat_id": strconv.FormatInt(id, 10)}
	if res.m != nil {
		metadata["message_id"] = strconv.Itoa(res.m.ID)
	}
	return notification.Succeeded(notification.ChannelTelegram, "Telegram message sent to "+r.TelegramChatID, metadata)
}

// Validate checks the token with a getMe call.
func (p *Provider) Validate(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		_, err := p.bot.Raw("getMe", nil)
		errc <- err
	}()

	select {
	case err := <-errc:
		switch {
		case err == nil:
			return nil
		case errors.Is(err, tele.ErrUnauthorized):
			return common.NewConfigurationError(p.Name(), "invalid bot token")
		default:
			return common.WrapConfigurationError(p.Name(), "configuration validation failed", err)
		}
	case <-ctx.Done():
		return common.WrapConfigurationError(p.Name(), "configuration validation failed", ctx.Err())
	}
}

func failure(err error) notification.Outcome {
	switch {
	case errors.Is(err, tele.ErrUnauthorized):
		return notification.Failed(notification.ChannelTelegram, "Authentication failed", "invalid bot token")
	case errors.Is(err, tele.ErrChatNotFound):
		return notification.Failed(notification.ChannelTelegram, "Chat not found", err.Error())
	case errors.Is(err, tele.ErrBlockedByUser):
		return notification.Failed(notification.ChannelTelegram, "Bot blocked by user", err.Error())
	case strings.Contains(err.Error(), "Too Many Requests"):
		return notification.Failed(notification.ChannelTelegram, "Rate limit exceeded", err.Error())
	default:
		return notification.Failed(notification.ChannelTelegram, "Telegram API error", fmt.Sprintf("telegram: %s", err))
	}
}

// formatText renders "*subject*\n\nbody", or just the body when there is
// no subject, capped at Telegram's message length.
func formatText(msg notification.RenderedMessage) string {
	text := msg.Body
	if msg.Subject != "" {
		text = "*" + msg.Subject + "*\n\n" + msg.Body
	}
	runes := []rune(text)
	if len(runes) > maxTextRunes {
		return string(runes[:maxTextRunes-3]) + "..."
	}
	return text
}

func chatID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
