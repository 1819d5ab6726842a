package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"courier/internal/common"
)

// Worker processes asynchronous delivery tasks from the queue.
// It resolves the recipients, runs the bulk delivery and logs the outcome.
type Worker struct {
	service *Service
	logger  *slog.Logger
}

// NewWorker creates a new delivery worker.
func NewWorker(service *Service, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{service: service, logger: logger}
}

// ProcessTask handles one queued delivery. Individual recipient failures are
// only logged. The task fails when the input is invalid, the recipient lookup
// fails, or no recipient was reached at all, in which case the queue may
// retry it.
func (w *Worker) ProcessTask(ctx context.Context, taskID string, req *BulkSendRequest) error {
	start := time.Now()

	resp, err := w.service.SendBulk(ctx, req)
	if err != nil {
		w.logger.Error("queued delivery failed",
			"task_id", taskID,
			"error", err,
			"duration", time.Since(start),
		)
		return fmt.Errorf("processing delivery task %s: %w", taskID, err)
	}

	for _, r := range resp.Reports {
		if r.Success {
			continue
		}
		w.logger.Warn("recipient not reached",
			"task_id", taskID,
			"recipient_id", r.Recipient.ID,
			"report_id", r.ID,
			"attempts", r.TotalAttempts,
			"failed_providers", r.FailedProviders(),
		)
	}

	w.logger.Info("queued delivery processed",
		"task_id", taskID,
		"total", resp.Summary.Total,
		"succeeded", resp.Summary.Succeeded,
		"failed", resp.Summary.Failed,
		"duration", time.Since(start),
	)

	if resp.Summary.Total > 0 && resp.Summary.Succeeded == 0 {
		return common.NewProviderError("", fmt.Sprintf("none of %d recipients reached", resp.Summary.Total))
	}

	return nil
}
