// Package adapter wraps external capabilities (question generation, answer
// scoring, resume lookup) behind one call discipline: a deadline per attempt,
// bounded retries with exponential backoff for transient failures and no
// retry for rejections.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/interviewpilot/internal/interview"
	"github.com/spigell/interviewpilot/internal/utils"
)

// ErrExhausted is returned once every attempt failed transiently.
var ErrExhausted = errors.New("retries exhausted")

// Policy bounds one capability's calls.
type Policy struct {
	// Timeout applies to each attempt separately.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Limiter, when set, is waited on before every attempt.
	Limiter *rate.Limiter
}

func DefaultPolicy() Policy {
	return Policy{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// Observer receives one event per attempt. metrics.Metrics implements it.
type Observer interface {
	UpstreamAttempt(capability, outcome string, elapsed time.Duration)
}

// Attempt outcomes reported to the Observer.
const (
	OutcomeOK        = "ok"
	OutcomeTransient = "transient"
	OutcomeRejected  = "rejected"
	OutcomeTimeout   = "timeout"
)

// Caller applies a Policy to calls of one capability.
type Caller struct {
	capability string
	policy     Policy
	logger     *zap.Logger
	observer   Observer
}

func NewCaller(capability string, policy Policy, logger *zap.Logger, observer Observer) *Caller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		capability: capability,
		policy:     policy,
		logger:     logger.With(zap.String("capability", capability)),
		observer:   observer,
	}
}

// IsPermanent reports whether retrying err cannot succeed: explicit
// rejections, domain errors about the request itself and caller cancellation.
func IsPermanent(err error) bool {
	return errors.Is(err, interview.ErrUpstreamRejected) ||
		errors.Is(err, interview.ErrNotFound) ||
		errors.Is(err, interview.ErrForbidden) ||
		errors.Is(err, interview.ErrInvalidInput) ||
		errors.Is(err, context.Canceled)
}

// Do runs fn under the caller's policy. A permanent error is returned as is;
// running out of attempts returns an error matching ErrExhausted and the last
// failure.
func Do[T any](ctx context.Context, c *Caller, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		if c.policy.Limiter != nil {
			if err := c.policy.Limiter.Wait(ctx); err != nil {
				return zero, fmt.Errorf("%s rate limit: %w", c.capability, err)
			}
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
		}

		started := time.Now()
		v, err := fn(attemptCtx)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		elapsed := time.Since(started)

		if err == nil {
			c.observe(OutcomeOK, elapsed)
			return v, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			c.observe(OutcomeTransient, elapsed)
			return zero, fmt.Errorf("%s: %w", c.capability, ctxErr)
		}

		if IsPermanent(err) {
			c.observe(OutcomeRejected, elapsed)
			c.logger.Warn("upstream rejected request",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			return zero, err
		}

		outcome := OutcomeTransient
		if timedOut {
			outcome = OutcomeTimeout
		}
		c.observe(outcome, elapsed)

		if attempt >= c.policy.MaxRetries {
			c.logger.Error("upstream retries exhausted",
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			return zero, fmt.Errorf("%s: %w after %d attempts: %w", c.capability, ErrExhausted, attempt+1, err)
		}

		delay := utils.Backoff(c.policy.BaseDelay, c.policy.MaxDelay, attempt)
		c.logger.Warn("upstream call failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.String("outcome", outcome),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := utils.WaitFor(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: %w", c.capability, err)
		}
	}
}

func (c *Caller) observe(outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.UpstreamAttempt(c.capability, outcome, elapsed)
	}
}
