package notification_test

import (
	"errors"
	"testing"

	"courier/internal/common"
	"courier/internal/domain/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("substitutes every placeholder", func(t *testing.T) {
		t.Parallel()

		msg := notification.NewMessage("Hello, {name}!", "Order #{order_id}: ${total}", map[string]string{
			"name":     "John",
			"order_id": "12345",
			"total":    "29.99",
		})

		out, err := notification.Render(msg)
		require.NoError(t, err)
		assert.Equal(t, "Hello, John!", out.Subject)
		assert.Equal(t, "Order #12345: $29.99", out.Body)
	})

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()

		msg := notification.NewMessage("Hi {name}", "{name}, {name}", map[string]string{"name": "Ann"})

		first, err := notification.Render(msg)
		require.NoError(t, err)
		second, err := notification.Render(msg)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, "Ann, Ann", second.Body)
	})

	t.Run("returns templates verbatim without data", func(t *testing.T) {
		t.Parallel()

		msg := notification.NewMessage("Hi {name}", "Body {x}", nil)

		out, err := notification.Render(msg)
		require.NoError(t, err)
		assert.Equal(t, "Hi {name}", out.Subject)
		assert.Equal(t, "Body {x}", out.Body)
	})

	t.Run("fails on missing key", func(t *testing.T) {
		t.Parallel()

		msg := notification.NewMessage("Hi {name}", "Your code is {code}", map[string]string{"name": "Ann"})

		_, err := notification.Render(msg)
		require.Error(t, err)

		var tmplErr *common.TemplateError
		require.True(t, errors.As(err, &tmplErr))
		assert.Equal(t, "body", tmplErr.Field)
		assert.Equal(t, "code", tmplErr.Key)
	})

	t.Run("does not rescan substituted values", func(t *testing.T) {
		t.Parallel()

		msg := notification.NewMessage("", "{a}", map[string]string{"a": "{b}"})

		out, err := notification.Render(msg)
		require.NoError(t, err)
		assert.Equal(t, "{b}", out.Body)
	})

	t.Run("keeps an unclosed brace", func(t *testing.T) {
		t.Parallel()

		msg := notification.NewMessage("", "{name} said {", map[string]string{"name": "Bo"})

		out, err := notification.Render(msg)
		require.NoError(t, err)
		assert.Equal(t, "Bo said {", out.Body)
	})
}

func TestMessage_IsImmutable(t *testing.T) {
	t.Parallel()

	data := map[string]string{"name": "Ann"}
	msg := notification.NewMessage("Hi {name}", "", data)

	data["name"] = "Eve"
	msg.Data()["name"] = "Mallory"

	out, err := notification.Render(msg)
	require.NoError(t, err)
	assert.Equal(t, "Hi Ann", out.Subject)
}
