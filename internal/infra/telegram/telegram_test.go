package telegram_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"courier/internal/domain/notification"
	"courier/internal/infra/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "123:abc"

type botAPI struct {
	method string
	params map[string]any
}

// newBotAPI fakes the Bot API. respond returns the status and body for a
// method call.
func newBotAPI(t *testing.T, respond func(method string) (int, string)) (*telegram.Provider, *botAPI) {
	t.Helper()

	last := &botAPI{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, "/bot"+token+"/")
		last.method = method
		last.params = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&last.params)

		status, body := respond(method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	p, err := telegram.New(telegram.Config{BotToken: token, APIURL: srv.URL})
	require.NoError(t, err)
	return p, last
}

const sentMessage = `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`

func TestNew_RequiresToken(t *testing.T) {
	t.Parallel()

	_, err := telegram.New(telegram.Config{})
	assert.Error(t, err)
}

func TestProvider_Reachable(t *testing.T) {
	t.Parallel()

	p, err := telegram.New(telegram.Config{BotToken: token})
	require.NoError(t, err)

	assert.True(t, p.Reachable(notification.Recipient{TelegramChatID: "42"}))
	assert.True(t, p.Reachable(notification.Recipient{TelegramChatID: "-100123"}))
	assert.False(t, p.Reachable(notification.Recipient{TelegramChatID: ""}))
	assert.False(t, p.Reachable(notification.Recipient{TelegramChatID: "@channel"}))
}

func TestProvider_Send(t *testing.T) {
	t.Parallel()

	carol := notification.Recipient{ID: "u3", TelegramChatID: "42"}

	t.Run("formats subject in bold", func(t *testing.T) {
		t.Parallel()

		p, last := newBotAPI(t, func(string) (int, string) { return http.StatusOK, sentMessage })

		out := p.Send(context.Background(), carol, notification.RenderedMessage{Subject: "Welcome", Body: "Hello"})
		require.True(t, out.Success, out.Error)
		assert.Equal(t, notification.ChannelTelegram, out.Channel)
		assert.Equal(t, "7", out.Metadata["message_id"])

		assert.Equal(t, "sendMessage", last.method)
		assert.Equal(t, "*Welcome*\n\nHello", last.params["text"])
		assert.Equal(t, "Markdown", last.params["parse_mode"])
	})

	t.Run("body only without subject", func(t *testing.T) {
		t.Parallel()

		p, last := newBotAPI(t, func(string) (int, string) { return http.StatusOK, sentMessage })

		out := p.Send(context.Background(), carol, notification.RenderedMessage{Body: "Hello"})
		require.True(t, out.Success, out.Error)
		assert.Equal(t, "Hello", last.params["text"])
	})

	t.Run("truncates long text", func(t *testing.T) {
		t.Parallel()

		p, last := newBotAPI(t, func(string) (int, string) { return http.StatusOK, sentMessage })

		out := p.Send(context.Background(), carol, notification.RenderedMessage{Body: strings.Repeat("a", 5000)})
		require.True(t, out.Success, out.Error)

		text, _ := last.params["text"].(string)
		assert.Equal(t, 4096, utf8.RuneCountInString(text))
		assert.True(t, strings.HasSuffix(text, "..."))
	})

	t.Run("maps api errors", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			status int
			body   string
			want   string
		}{
			{http.StatusUnauthorized, `{"ok":false,"error_code":401,"description":"Unauthorized"}`, "Authentication failed"},
			{http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, "Chat not found"},
			{http.StatusInternalServerError, `{"ok":false,"error_code":500,"description":"Internal Server Error"}`, "Telegram API error"},
		}
		for _, tt := range tests {
			p, _ := newBotAPI(t, func(string) (int, string) { return tt.status, tt.body })

			out := p.Send(context.Background(), carol, notification.RenderedMessage{Body: "hi"})
			assert.False(t, out.Success)
			assert.Equal(t, tt.want, out.Status, tt.body)
		}
	})

	t.Run("no chat id", func(t *testing.T) {
		t.Parallel()

		p, _ := newBotAPI(t, func(string) (int, string) { return http.StatusOK, sentMessage })

		out := p.Send(context.Background(), notification.Recipient{ID: "x"}, notification.RenderedMessage{Body: "hi"})
		assert.False(t, out.Success)
		assert.Equal(t, "User Telegram chat ID is not available", out.Status)
	})
}

func TestProvider_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid token", func(t *testing.T) {
		t.Parallel()

		p, last := newBotAPI(t, func(string) (int, string) {
			return http.StatusOK, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"courier","username":"courier_bot"}}`
		})
		require.NoError(t, p.Validate(context.Background()))
		assert.Equal(t, "getMe", last.method)
	})

	t.Run("invalid token", func(t *testing.T) {
		t.Parallel()

		p, _ := newBotAPI(t, func(string) (int, string) {
			return http.StatusUnauthorized, `{"ok":false,"error_code":401,"description":"Unauthorized"}`
		})
		err := p.Validate(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid bot token")
	})
}
