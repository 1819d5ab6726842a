package email_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"courier/internal/common"
	"courier/internal/domain/notification"
	"courier/internal/infra/email"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	recipient = notification.Recipient{ID: "u1", Email: "alice@example.com"}
	rendered  = notification.RenderedMessage{Subject: "Welcome", Body: "Hello Alice"}
)

func TestResendProvider_Reachable(t *testing.T) {
	t.Parallel()

	p := email.NewResendProvider("key", "noreply@example.com", "")

	tests := []struct {
		addr string
		want bool
	}{
		{"alice@example.com", true},
		{"", false},
		{"alice", false},
		{"alice@localhost", false},
		{"Alice <alice@example.com>", false},
		{" alice@example.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Reachable(notification.Recipient{Email: tt.addr}), tt.addr)
	}
}

func TestResendProvider_Send(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/emails", r.URL.Path)
			assert.Equal(t, "Bearer re_key", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"id":"msg_123"}`))
		}))
		defer srv.Close()

		p := email.NewResendProvider("re_key", "noreply@example.com", "Courier", email.WithResendBaseURL(srv.URL))
		out := p.Send(context.Background(), recipient, rendered)

		require.True(t, out.Success, out.Error)
		assert.Equal(t, notification.ChannelEmail, out.Channel)
		assert.Equal(t, "msg_123", out.Metadata["provider_message_id"])
		assert.Equal(t, "Courier <noreply@example.com>", got["from"])
		assert.Equal(t, "Welcome", got["subject"])
		assert.Equal(t, "Hello Alice", got["text"])
	})

	t.Run("maps api errors", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			status int
			want   string
		}{
			{http.StatusUnauthorized, "Authentication failed"},
			{http.StatusTooManyRequests, "Rate limit exceeded"},
			{http.StatusUnprocessableEntity, "Resend API error"},
		}
		for _, tt := range tests {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope","statusCode":0}`))
			}))

			p := email.NewResendProvider("re_key", "noreply@example.com", "", email.WithResendBaseURL(srv.URL))
			out := p.Send(context.Background(), recipient, rendered)
			srv.Close()

			assert.False(t, out.Success)
			assert.Equal(t, tt.want, out.Status)
			assert.Contains(t, out.Error, "nope")
		}
	})

	t.Run("unreachable recipient is a failed outcome", func(t *testing.T) {
		t.Parallel()

		p := email.NewResendProvider("re_key", "noreply@example.com", "")
		out := p.Send(context.Background(), notification.Recipient{ID: "x"}, rendered)
		assert.False(t, out.Success)
		assert.Equal(t, "User email is not available", out.Status)
	})

	t.Run("network failure is a failed outcome", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		p := email.NewResendProvider("re_key", "noreply@example.com", "", email.WithResendBaseURL(srv.URL))
		out := p.Send(context.Background(), recipient, rendered)
		assert.False(t, out.Success)
		assert.Equal(t, "Request failed", out.Status)
	})
}

func TestResendProvider_Validate(t *testing.T) {
	t.Parallel()

	t.Run("missing api key", func(t *testing.T) {
		t.Parallel()

		err := email.NewResendProvider("", "noreply@example.com", "").Validate(context.Background())
		var cfgErr *common.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("invalid from address", func(t *testing.T) {
		t.Parallel()

		err := email.NewResendProvider("key", "not-an-address", "").Validate(context.Background())
		assert.Error(t, err)
	})

	t.Run("rejected key", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		err := email.NewResendProvider("key", "noreply@example.com", "", email.WithResendBaseURL(srv.URL)).Validate(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "authentication failed")
	})

	t.Run("accepted key", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/domains", r.URL.Path)
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer srv.Close()

		err := email.NewResendProvider("key", "noreply@example.com", "", email.WithResendBaseURL(srv.URL)).Validate(context.Background())
		assert.NoError(t, err)
	})
}
