package notification

import (
	"log/slog"
	"net/http"

	"courier/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for the notification domain.
type Handler struct {
	service *Service
}

// NewHandler creates a new notification handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Status handles GET /api/v1/status
func (h *Handler) Status(c *gin.Context) {
	common.Success(c, http.StatusOK, h.service.Status(c.Request.Context()))
}

// Send handles POST /api/v1/send
// Delivers to one recipient synchronously and returns the delivery report.
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	report, err := h.service.Send(c.Request.Context(), &req)
	if err != nil {
		slog.Error("send notification failed",
			"error", err,
			"recipient_id", req.RecipientID,
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, report)
}

// SendBulk handles POST /api/v1/send/bulk
// Delivers to many recipients synchronously with bounded concurrency.
func (h *Handler) SendBulk(c *gin.Context) {
	var req BulkSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.SendBulk(c.Request.Context(), &req)
	if err != nil {
		slog.Error("bulk send failed",
			"error", err,
			"recipients", len(req.Recipients)+len(req.RecipientIDs),
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, resp)
}

// SendAsync handles POST /api/v1/send/async
// Enqueues a bulk delivery for async processing and returns 202 Accepted.
func (h *Handler) SendAsync(c *gin.Context) {
	var req BulkSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.service.Enqueue(c.Request.Context(), &req)
	if err != nil {
		slog.Error("enqueue delivery failed",
			"error", err,
			"idempotency_key", req.IdempotencyKey,
		)
		common.HandleError(c, err)
		return
	}

	status := http.StatusAccepted
	if resp.Duplicate {
		status = http.StatusOK
	}
	common.Success(c, status, resp)
}

// RegisterRoutes registers notification routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.Status)
	rg.POST("/send", h.Send)
	rg.POST("/send/bulk", h.SendBulk)
	rg.POST("/send/async", h.SendAsync)
}
