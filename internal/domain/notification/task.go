package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"courier/internal/common"

	"github.com/hibiken/asynq"
)

// TaskTypeDeliver is the asynq task type for asynchronous deliveries.
const TaskTypeDeliver = "notification:deliver"

// NewDeliverTask creates a new asynq task carrying a bulk delivery request.
func NewDeliverTask(req *BulkSendRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDeliver, payload), nil
}

// ParseDeliverPayload deserializes the task payload.
func ParseDeliverPayload(data []byte) (*BulkSendRequest, error) {
	var req BulkSendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	return &req, nil
}

// HandleDeliverTask adapts the worker to an asynq handler. Errors caused by
// the request itself are marked with asynq.SkipRetry since retrying cannot
// fix them.
func HandleDeliverTask(w *Worker) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		req, err := ParseDeliverPayload(task.Payload())
		if err != nil {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		taskID, _ := asynq.GetTaskID(ctx)
		if err := w.ProcessTask(ctx, taskID, req); err != nil {
			if isPermanent(err) {
				return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	}
}

func isPermanent(err error) bool {
	var validation *common.ValidationError
	var tmpl *common.TemplateError
	var notFound *common.NotFoundError
	return errors.As(err, &validation) || errors.As(err, &tmpl) || errors.As(err, &notFound)
}
