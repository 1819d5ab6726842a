package notification

import (
	"fmt"
	"time"

	"courier/internal/common"
)

// Strategy decides when a delivery stops trying providers and retries.
type Strategy string

const (
	// StrategyFailFast stops at the first failed attempt.
	StrategyFailFast Strategy = "fail_fast"
	// StrategyTryAll gives every reachable provider its full retry budget.
	StrategyTryAll Strategy = "try_all"
	// StrategyFirstSuccess stops at the first successful attempt.
	StrategyFirstSuccess Strategy = "first_success"
)

const (
	DefaultStrategy      = StrategyFirstSuccess
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = time.Second
	DefaultMaxConcurrent = 10
)

// ParseStrategy converts a strategy name into a Strategy.
// An empty name yields the default strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return DefaultStrategy, nil
	case StrategyFailFast, StrategyTryAll, StrategyFirstSuccess:
		return Strategy(s), nil
	default:
		return "", common.NewValidationError(fmt.Sprintf("unsupported delivery strategy: %s", s))
	}
}

// stopsOn reports whether an attempt with the given result ends the whole
// delivery under this strategy.
func (s Strategy) stopsOn(success bool) bool {
	switch s {
	case StrategyFirstSuccess:
		return success
	case StrategyFailFast:
		return !success
	default:
		return false
	}
}

// nextOnSuccess reports whether a successful attempt moves on to the next
// provider instead of spending the remaining retries on the same one.
func (s Strategy) nextOnSuccess() bool {
	return s == StrategyFailFast
}

// Policy controls retries and fallback for one delivery.
type Policy struct {
	Strategy             Strategy
	MaxRetriesPerChannel int
	RetryDelay           time.Duration

	// SendTimeout bounds each provider invocation. Zero means no timeout
	// beyond the caller's context.
	SendTimeout time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Strategy:             DefaultStrategy,
		MaxRetriesPerChannel: DefaultMaxRetries,
		RetryDelay:           DefaultRetryDelay,
	}
}

// Normalize fills unset fields with defaults and rejects invalid values.
func (p Policy) Normalize() (Policy, error) {
	strategy, err := ParseStrategy(string(p.Strategy))
	if err != nil {
		return Policy{}, err
	}
	p.Strategy = strategy

	if p.MaxRetriesPerChannel < 0 {
		return Policy{}, common.NewValidationError("max retries per channel must be at least 1")
	}
	if p.MaxRetriesPerChannel == 0 {
		p.MaxRetriesPerChannel = DefaultMaxRetries
	}
	if p.RetryDelay < 0 {
		return Policy{}, common.NewValidationError("retry delay must not be negative")
	}
	if p.SendTimeout < 0 {
		return Policy{}, common.NewValidationError("send timeout must not be negative")
	}

	return p, nil
}

// PolicyParams is the wire form of a policy override. Unset fields inherit
// from the base policy.
type PolicyParams struct {
	Strategy      string `json:"strategy,omitempty"`
	MaxRetries    *int   `json:"max_retries,omitempty"`
	RetryDelayMS  *int64 `json:"retry_delay_ms,omitempty"`
	SendTimeoutMS *int64 `json:"send_timeout_ms,omitempty"`
}

// Apply overlays the params on base and normalizes the result.
func (pp *PolicyParams) Apply(base Policy) (Policy, error) {
	if pp == nil {
		return base.Normalize()
	}
	if pp.Strategy != "" {
		base.Strategy = Strategy(pp.Strategy)
	}
	if pp.MaxRetries != nil {
		if *pp.MaxRetries < 1 {
			return Policy{}, common.NewValidationError("max_retries must be at least 1")
		}
		base.MaxRetriesPerChannel = *pp.MaxRetries
	}
	if pp.RetryDelayMS != nil {
		base.RetryDelay = time.Duration(*pp.RetryDelayMS) * time.Millisecond
	}
	if pp.SendTimeoutMS != nil {
		base.SendTimeout = time.Duration(*pp.SendTimeoutMS) * time.Millisecond
	}
	return base.Normalize()
}
