package notification_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"courier/internal/domain/notification"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newRouter(svc *notification.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	notification.NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string, header ...string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestHandler_Send(t *testing.T) {
	t.Parallel()

	r := newRouter(newService([]notification.Provider{newFake("A", true)}))

	t.Run("delivers and returns the report", func(t *testing.T) {
		t.Parallel()

		w, resp := do(t, r, http.MethodPost, "/api/v1/send", `{
			"recipient": {"id": "u1", "email": "alice@example.com"},
			"message": {"subject": "Hi {name}", "body": "Welcome", "data": {"name": "Alice"}}
		}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)

		var report map[string]any
		require.NoError(t, json.Unmarshal(resp.Data, &report))
		assert.Equal(t, true, report["success"])
		assert.Equal(t, []any{"A"}, report["successful_providers"])
	})

	t.Run("missing placeholder is a bad request", func(t *testing.T) {
		t.Parallel()

		w, resp := do(t, r, http.MethodPost, "/api/v1/send", `{
			"recipient": {"id": "u1"},
			"message": {"subject": "Hi {name}", "body": "", "data": {"other": "x"}}
		}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Contains(t, resp.Error.Message, "name")
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		w, _ := do(t, r, http.MethodPost, "/api/v1/send", `{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_SendBulk(t *testing.T) {
	t.Parallel()

	r := newRouter(newService([]notification.Provider{newFake("A", true)}))

	w, resp := do(t, r, http.MethodPost, "/api/v1/send/bulk", `{
		"recipients": [{"id": "a"}, {"id": "b"}, {"id": "c"}],
		"message": {"subject": "s", "body": "b"},
		"max_concurrent": 2
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	var bulk struct {
		Summary notification.BulkSummary `json:"summary"`
		Reports []struct {
			Recipient notification.Recipient `json:"recipient"`
		} `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &bulk))
	assert.Equal(t, 3, bulk.Summary.Succeeded)
	require.Len(t, bulk.Reports, 3)
	assert.Equal(t, "a", bulk.Reports[0].Recipient.ID)
	assert.Equal(t, "c", bulk.Reports[2].Recipient.ID)
}

func TestHandler_SendAsync(t *testing.T) {
	t.Parallel()

	body := `{"recipients": [{"id": "a", "email": "a@example.com"}], "message": {"subject": "s", "body": "b"}}`

	t.Run("accepted then duplicate", func(t *testing.T) {
		t.Parallel()

		q := newMemEnqueuer()
		r := newRouter(newService(nil, notification.WithEnqueuer(q), notification.WithIdempotencyGuard(newMemGuard())))

		w, _ := do(t, r, http.MethodPost, "/api/v1/send/async", body, "Idempotency-Key", "abc")
		assert.Equal(t, http.StatusAccepted, w.Code)

		w, resp := do(t, r, http.MethodPost, "/api/v1/send/async", body, "Idempotency-Key", "abc")
		assert.Equal(t, http.StatusOK, w.Code)

		var enq notification.EnqueueResponse
		require.NoError(t, json.Unmarshal(resp.Data, &enq))
		assert.True(t, enq.Duplicate)
		assert.Equal(t, 1, q.Len())
	})

	t.Run("unavailable without a queue", func(t *testing.T) {
		t.Parallel()

		r := newRouter(newService(nil))
		w, _ := do(t, r, http.MethodPost, "/api/v1/send/async", body)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHandler_Status(t *testing.T) {
	t.Parallel()

	p := newMockProvider("Resend", notification.ChannelEmail)
	p.On("Validate", mock.Anything).Return(nil).Once()

	r := newRouter(newService([]notification.Provider{p}))
	w, resp := do(t, r, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st notification.Status
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.True(t, st.Healthy)
	assert.Equal(t, "healthy", st.Status)
	require.Len(t, st.Providers, 1)
	assert.Equal(t, "Resend", st.Providers[0].Name)
}
