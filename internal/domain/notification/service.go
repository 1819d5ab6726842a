package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"courier/internal/common"

	"github.com/google/uuid"
)

// ServiceConfig holds the delivery defaults applied by the Service.
type ServiceConfig struct {
	Policy        Policy
	MaxConcurrent int
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithDirectory enables resolving recipients by id.
func WithDirectory(directory RecipientDirectory) ServiceOption {
	return func(s *Service) { s.directory = directory }
}

// WithEnqueuer enables asynchronous deliveries.
func WithEnqueuer(enqueuer Enqueuer) ServiceOption {
	return func(s *Service) { s.enqueuer = enqueuer }
}

// WithIdempotencyGuard enables idempotency keys on asynchronous deliveries.
func WithIdempotencyGuard(guard IdempotencyGuard) ServiceOption {
	return func(s *Service) { s.guard = guard }
}

// WithServiceLogger sets the logger for the Service.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service is the entry point used by the HTTP handlers and the queue worker.
// It owns the configured providers (in priority order) and the default
// delivery policy, and reports provider health.
type Service struct {
	dispatcher *Dispatcher
	providers  []Provider
	cfg        ServiceConfig

	directory RecipientDirectory
	enqueuer  Enqueuer
	guard     IdempotencyGuard
	logger    *slog.Logger

	// Provider validation runs once per Service. Construct a new Service
	// to revalidate after reconfiguration.
	validateOnce sync.Once
	validated    []Provider
	invalid      []error // aligned with providers
}

// NewService creates a new notification service.
func NewService(dispatcher *Dispatcher, providers []Provider, cfg ServiceConfig, opts ...ServiceOption) *Service {
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}

	s := &Service{
		dispatcher: dispatcher,
		providers:  append([]Provider(nil), providers...),
		cfg:        cfg,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Providers returns the configured providers in priority order.
func (s *Service) Providers() []Provider {
	return append([]Provider(nil), s.providers...)
}

// ValidateProviders validates every provider configuration on first use and
// returns the subset that passed. Later calls return the cached subset.
func (s *Service) ValidateProviders(ctx context.Context) []Provider {
	s.validateOnce.Do(func() {
		s.invalid = make([]error, len(s.providers))
		for i, p := range s.providers {
			if err := p.Validate(ctx); err != nil {
				s.invalid[i] = err
				s.logger.Warn("provider validation failed", "provider", p.Name(), "error", err)
				continue
			}
			s.validated = append(s.validated, p)
			s.logger.Info("provider validated successfully", "provider", p.Name())
		}
	})
	return append([]Provider(nil), s.validated...)
}

// ProviderStatus describes one configured provider.
type ProviderStatus struct {
	Name      string  `json:"name"`
	Channel   Channel `json:"channel"`
	Available bool    `json:"available"`
	Error     *string `json:"error"`
}

// Status aggregates provider health.
type Status struct {
	Status    string           `json:"service_status"`
	Healthy   bool             `json:"healthy"`
	Total     int              `json:"total_providers"`
	Available int              `json:"available_providers"`
	Providers []ProviderStatus `json:"providers"`
}

// Status reports which providers passed configuration validation. The
// service is healthy when at least one provider is available.
func (s *Service) Status(ctx context.Context) Status {
	validated := s.ValidateProviders(ctx)

	st := Status{
		Healthy:   len(validated) > 0,
		Total:     len(s.providers),
		Available: len(validated),
		Providers: make([]ProviderStatus, 0, len(s.providers)),
	}
	st.Status = "degraded"
	if st.Healthy {
		st.Status = "healthy"
	}

	for i, p := range s.providers {
		ps := ProviderStatus{Name: p.Name(), Channel: p.Channel(), Available: true}
		if err := s.invalid[i]; err != nil {
			msg := err.Error()
			ps.Available = false
			ps.Error = &msg
		}
		st.Providers = append(st.Providers, ps)
	}

	return st
}

// Send delivers one message to one recipient synchronously.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*Report, error) {
	recipient, err := s.resolveRecipient(ctx, req)
	if err != nil {
		return nil, err
	}

	policy, err := req.Policy.Apply(s.cfg.Policy)
	if err != nil {
		return nil, err
	}

	return s.dispatcher.Deliver(ctx, recipient, req.Message, s.providers, policy)
}

// SendBulk delivers one message to many recipients synchronously.
func (s *Service) SendBulk(ctx context.Context, req *BulkSendRequest) (*BulkResponse, error) {
	recipients, err := s.ResolveRecipients(ctx, req.Recipients, req.RecipientIDs)
	if err != nil {
		return nil, err
	}

	policy, err := req.Policy.Apply(s.cfg.Policy)
	if err != nil {
		return nil, err
	}

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = s.cfg.MaxConcurrent
	}

	reports, err := s.dispatcher.DeliverBulk(ctx, recipients, req.Message, s.providers, policy, maxConcurrent)
	if err != nil {
		return nil, err
	}

	return &BulkResponse{Summary: Summarize(reports), Reports: reports}, nil
}

// Enqueue validates a bulk request, checks its idempotency key and queues it
// for asynchronous processing.
func (s *Service) Enqueue(ctx context.Context, req *BulkSendRequest) (*EnqueueResponse, error) {
	if s.enqueuer == nil {
		return nil, common.NewConfigurationError("queue", "asynchronous delivery is not configured")
	}
	if len(req.Recipients) == 0 && len(req.RecipientIDs) == 0 {
		return nil, common.NewValidationError("at least one recipient is required")
	}
	if err := validateRecipients(req.Recipients); err != nil {
		return nil, err
	}
	if len(req.RecipientIDs) > 0 && s.directory == nil {
		return nil, common.NewValidationError("recipient_ids require a recipient directory")
	}
	if _, err := req.Policy.Apply(s.cfg.Policy); err != nil {
		return nil, err
	}
	// Reject bad templates now rather than in the worker.
	if _, err := Render(req.Message); err != nil {
		return nil, err
	}

	taskID := uuid.NewString()
	total := len(req.Recipients) + len(req.RecipientIDs)

	if req.IdempotencyKey != "" && s.guard != nil {
		existing, reserved, err := s.guard.Reserve(ctx, req.IdempotencyKey, taskID)
		if err != nil {
			// Fail open: proceed without idempotency protection
			s.logger.Error("idempotency check failed", "key", req.IdempotencyKey, "error", err)
		} else if !reserved {
			s.logger.Info("idempotent request, returning existing task",
				"idempotency_key", req.IdempotencyKey,
				"task_id", existing,
			)
			return &EnqueueResponse{
				TaskID:         existing,
				IdempotencyKey: req.IdempotencyKey,
				Recipients:     total,
				Duplicate:      true,
			}, nil
		}
	}

	if err := s.enqueuer.EnqueueDelivery(taskID, req); err != nil {
		if req.IdempotencyKey != "" && s.guard != nil {
			if relErr := s.guard.Release(ctx, req.IdempotencyKey); relErr != nil {
				s.logger.Error("failed to release idempotency key", "key", req.IdempotencyKey, "error", relErr)
			}
		}
		return nil, fmt.Errorf("enqueuing delivery: %w", err)
	}

	s.logger.Info("delivery enqueued",
		"task_id", taskID,
		"recipients", total,
		"idempotency_key", req.IdempotencyKey,
	)

	return &EnqueueResponse{
		TaskID:         taskID,
		IdempotencyKey: req.IdempotencyKey,
		Recipients:     total,
	}, nil
}

// ResolveRecipients merges inline recipients with recipients looked up by id.
// Inline recipients come first.
func (s *Service) ResolveRecipients(ctx context.Context, inline []Recipient, ids []string) ([]Recipient, error) {
	if len(inline) == 0 && len(ids) == 0 {
		return nil, common.NewValidationError("at least one recipient is required")
	}
	if err := validateRecipients(inline); err != nil {
		return nil, err
	}

	recipients := append([]Recipient(nil), inline...)
	if len(ids) == 0 {
		return recipients, nil
	}

	if s.directory == nil {
		return nil, common.NewValidationError("recipient_ids require a recipient directory")
	}
	found, err := s.directory.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("looking up recipients: %w", err)
	}

	return append(recipients, found...), nil
}

func (s *Service) resolveRecipient(ctx context.Context, req *SendRequest) (Recipient, error) {
	if req.Recipient != nil {
		if err := validateRecipients([]Recipient{*req.Recipient}); err != nil {
			return Recipient{}, err
		}
		return *req.Recipient, nil
	}
	if req.RecipientID == "" {
		return Recipient{}, common.NewValidationError("recipient or recipient_id is required")
	}

	found, err := s.ResolveRecipients(ctx, nil, []string{req.RecipientID})
	if err != nil {
		return Recipient{}, err
	}
	return found[0], nil
}

func validateRecipients(recipients []Recipient) error {
	for i, r := range recipients {
		if r.ID == "" {
			return common.NewValidationError(fmt.Sprintf("recipients[%d]: id is required", i))
		}
	}
	return nil
}
