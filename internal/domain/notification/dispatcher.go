package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Dispatcher runs the delivery protocol for one or many recipients.
// It holds no per-delivery state and is safe for concurrent use.
type Dispatcher struct {
	logger *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger for the Dispatcher.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver sends msg to recipient through providers, in the given priority
// order, following policy. The returned error is non-nil only for invalid
// input (a bad policy or a template referencing missing data); delivery
// failures are reported in the Report.
func (d *Dispatcher) Deliver(ctx context.Context, recipient Recipient, msg Message, providers []Provider, policy Policy) (*Report, error) {
	policy, err := policy.Normalize()
	if err != nil {
		return nil, err
	}

	rendered, err := Render(msg)
	if err != nil {
		return nil, fmt.Errorf("rendering message: %w", err)
	}

	return d.deliver(ctx, recipient, msg, rendered, providers, policy), nil
}

// DeliverBulk delivers msg to every recipient with at most maxConcurrent
// deliveries in flight. Reports are returned in input order. A failure while
// delivering to one recipient never affects the others; it is recorded as
// an empty failed report for that recipient.
func (d *Dispatcher) DeliverBulk(ctx context.Context, recipients []Recipient, msg Message, providers []Provider, policy Policy, maxConcurrent int) ([]*Report, error) {
	policy, err := policy.Normalize()
	if err != nil {
		return nil, err
	}

	rendered, err := Render(msg)
	if err != nil {
		return nil, fmt.Errorf("rendering message: %w", err)
	}

	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	d.logger.Info("sending bulk notifications",
		"recipients", len(recipients),
		"max_concurrent", maxConcurrent,
		"strategy", policy.Strategy,
	)

	reports := make([]*Report, len(recipients))
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	var wg sync.WaitGroup
	for i, recipient := range recipients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = d.deliverGated(ctx, sem, recipient, msg, rendered, providers, policy)
		}()
	}
	wg.Wait()

	summary := Summarize(reports)
	d.logger.Info("bulk notification complete",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)

	return reports, nil
}

// deliverGated runs one delivery inside an admission slot. The slot is
// released on every exit path, including a recovered panic.
func (d *Dispatcher) deliverGated(ctx context.Context, sem *semaphore.Weighted, recipient Recipient, msg Message, rendered RenderedMessage, providers []Provider, policy Policy) (report *Report) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("delivery aborted unexpectedly",
				"recipient_id", recipient.ID,
				"error", fmt.Sprint(r),
			)
			report = newReport(recipient, msg)
		}
	}()

	if err := sem.Acquire(ctx, 1); err != nil {
		d.logger.Error("delivery not started",
			"recipient_id", recipient.ID,
			"error", err,
		)
		return newReport(recipient, msg)
	}
	defer sem.Release(1)

	return d.deliver(ctx, recipient, msg, rendered, providers, policy)
}

// deliver is the per-recipient state machine. Attempts for one recipient
// always run sequentially because the stop decision depends on the
// previous outcome.
func (d *Dispatcher) deliver(ctx context.Context, recipient Recipient, msg Message, rendered RenderedMessage, providers []Provider, policy Policy) *Report {
	report := newReport(recipient, msg)

	available := d.reachableProviders(providers, recipient)
	if len(available) == 0 {
		d.logger.Warn("no available providers for recipient", "recipient_id", recipient.ID)
		return report
	}

	d.logger.Info("sending notification",
		"recipient_id", recipient.ID,
		"providers", len(available),
		"strategy", policy.Strategy,
	)

	start := time.Now()

attemptLoop:
	for _, p := range available {
		for n := 1; n <= policy.MaxRetriesPerChannel; n++ {
			if ctx.Err() != nil {
				break attemptLoop
			}

			outcome := d.invoke(ctx, p, recipient, rendered, policy.SendTimeout)
			report.Attempts = append(report.Attempts, Attempt{
				Provider:  p.Name(),
				Channel:   p.Channel(),
				Number:    n,
				Outcome:   outcome,
				Timestamp: time.Now(),
			})

			if outcome.Success {
				report.Success = true
				final := outcome
				report.FinalOutcome = &final
				d.logger.Info("notification sent",
					"recipient_id", recipient.ID,
					"provider", p.Name(),
					"attempt", n,
				)
			} else {
				d.logger.Warn("notification attempt failed",
					"recipient_id", recipient.ID,
					"provider", p.Name(),
					"attempt", n,
					"status", outcome.Status,
					"error", outcome.Error,
				)
			}

			if policy.Strategy.stopsOn(outcome.Success) {
				break attemptLoop
			}
			if outcome.Success && policy.Strategy.nextOnSuccess() {
				continue attemptLoop
			}

			if !outcome.Success && n < policy.MaxRetriesPerChannel {
				if err := sleepContext(ctx, policy.RetryDelay); err != nil {
					break attemptLoop
				}
			}
		}
	}

	report.Elapsed = time.Since(start)
	report.TotalAttempts = len(report.Attempts)

	if report.Success {
		d.logger.Info("notification delivered",
			"recipient_id", recipient.ID,
			"attempts", report.TotalAttempts,
			"duration", report.Elapsed,
		)
	} else {
		d.logger.Error("notification delivery failed",
			"recipient_id", recipient.ID,
			"attempts", report.TotalAttempts,
			"duration", report.Elapsed,
		)
	}

	return report
}

// invoke calls the provider once. A panic or an expired per-call deadline
// becomes a failed outcome, even when the provider ignores ctx.
func (d *Dispatcher) invoke(ctx context.Context, p Provider, recipient Recipient, rendered RenderedMessage, timeout time.Duration) Outcome {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("unexpected error with provider",
					"provider", p.Name(),
					"recipient_id", recipient.ID,
					"error", fmt.Sprint(r),
				)
				done <- Failed(p.Channel(), "Unexpected error", fmt.Sprint(r))
			}
		}()
		done <- p.Send(callCtx, recipient, rendered)
	}()

	var outcome Outcome
	select {
	case outcome = <-done:
	case <-callCtx.Done():
		select {
		case outcome = <-done:
		default:
			// The provider goroutine finishes in the background; its
			// result lands in the buffered channel and is dropped.
			outcome = Failed(p.Channel(), "Send cancelled", callCtx.Err().Error())
			d.logger.Warn("provider did not return before deadline",
				"provider", p.Name(),
				"recipient_id", recipient.ID,
			)
		}
	}
	if outcome.Channel == "" {
		outcome.Channel = p.Channel()
	}

	if !outcome.Success && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		outcome.Status = "Send timed out"
		if outcome.Error == "" {
			outcome.Error = callCtx.Err().Error()
		}
	}

	return outcome
}

func newReport(recipient Recipient, msg Message) *Report {
	return &Report{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Message:   msg,
		Attempts:  []Attempt{},
	}
}

func (d *Dispatcher) reachableProviders(providers []Provider, recipient Recipient) []Provider {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil && d.reachable(p, recipient) {
			out = append(out, p)
		}
	}
	return out
}

// reachable treats a panicking Reachable as unreachable.
func (d *Dispatcher) reachable(p Provider, recipient Recipient) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("provider reachability check failed",
				"provider", p.Name(),
				"recipient_id", recipient.ID,
				"error", fmt.Sprint(r),
			)
			ok = false
		}
	}()
	return p.Reachable(recipient)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
