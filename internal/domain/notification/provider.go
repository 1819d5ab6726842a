package notification

import "context"

// Provider defines the contract for a notification delivery channel.
// Implementations live in infra/ (e.g., Resend or Postmark for email, Twilio
// for SMS, a Telegram bot for chat).
type Provider interface {
	// Name returns a human-readable provider name used in reports and logs.
	Name() string

	// Channel returns which delivery channel this provider handles.
	Channel() Channel

	// Reachable reports whether the recipient can be reached through this provider.
	Reachable(recipient Recipient) bool

	// Send delivers a rendered message. Implementations must convert every
	// internal fault into a failed Outcome instead of panicking, and must
	// honour ctx cancellation.
	Send(ctx context.Context, recipient Recipient, msg RenderedMessage) Outcome

	// Validate checks the provider configuration. It returns a
	// *common.ConfigurationError when the provider cannot operate.
	Validate(ctx context.Context) error
}

// RecipientDirectory resolves recipient ids to contact details.
// Implementations live in infra/store/.
type RecipientDirectory interface {
	// Lookup returns recipients in the same order as ids. It returns a
	// *common.NotFoundError if any id is unknown.
	Lookup(ctx context.Context, ids []string) ([]Recipient, error)
}

// Enqueuer defines the contract for enqueuing asynchronous deliveries.
// This allows the service to be decoupled from the specific queue implementation.
type Enqueuer interface {
	EnqueueDelivery(taskID string, req *BulkSendRequest) error
}

// IdempotencyGuard remembers which task was created for an idempotency key.
// Implementations live in infra/idempotency/.
type IdempotencyGuard interface {
	// Reserve claims key for taskID. If the key was already claimed it returns
	// the earlier task id and false.
	Reserve(ctx context.Context, key, taskID string) (existingTaskID string, reserved bool, err error)

	// Release forgets key so a failed enqueue can be retried.
	Release(ctx context.Context, key string) error
}
