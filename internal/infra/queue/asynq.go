package queue

import (
	"fmt"
	"time"

	"courier/internal/domain/notification"

	"github.com/hibiken/asynq"
)

// QueueName is the asynq queue deliveries are placed on.
const QueueName = "notifications"

// NewClient creates a new asynq client connected to Redis.
func NewClient(redisAddr, password string, db int) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
}

// NewServer creates a new asynq server connected to Redis.
func NewServer(redisAddr, password string, db int, concurrency int, retryDelay time.Duration) *asynq.Server {
	if retryDelay <= 0 {
		retryDelay = 30 * time.Second
	}
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueName: 10, // priority weight
				"default": 1,
			},
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				return backoff(retryDelay, n)
			},
		},
	)
}

// backoff doubles base for every retry: base, 2*base, 4*base...
func backoff(base time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return base * time.Duration(1<<uint(min(n-1, 10)))
}

// Enqueuer adapts the asynq client to the notification.Enqueuer interface.
type Enqueuer struct {
	client   *asynq.Client
	maxRetry int
}

// NewEnqueuer creates an Enqueuer. maxRetry bounds queue-level retries of a
// task whose processing failed as a whole.
func NewEnqueuer(client *asynq.Client, maxRetry int) *Enqueuer {
	return &Enqueuer{client: client, maxRetry: maxRetry}
}

// EnqueueDelivery enqueues a delivery task under taskID.
func (e *Enqueuer) EnqueueDelivery(taskID string, req *notification.BulkSendRequest) error {
	task, err := notification.NewDeliverTask(req)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}

	_, err = e.client.Enqueue(task,
		asynq.TaskID(taskID),
		asynq.MaxRetry(e.maxRetry),
		asynq.Queue(QueueName),
	)
	if err != nil {
		return fmt.Errorf("enqueuing task: %w", err)
	}

	return nil
}
