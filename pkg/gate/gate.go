package gate

import (
	"context"
	"sync"
	"time"

	"wxrss/pkg/config"
	errs "wxrss/pkg/errors"
	"wxrss/pkg/logger"
	"wxrss/pkg/retry"
)

// throttleCap bounds backoff growth: after three consecutive throttles the
// delay stops escalating but the error kind stays the same.
const throttleCap = 3

// RateLimitState tracks throttling bookkeeping for one session.
type RateLimitState struct {
	LastRequest          time.Time
	ConsecutiveThrottles int
	BackoffDeadline      time.Time
}

// Gate wraps every authenticated call against one session. It serializes
// calls (the automation/session resource is not safe for concurrent use),
// enforces a minimum spacing between consecutive requests, retries transport
// failures within a small bound, and turns platform throttle signals into
// RateLimitState bookkeeping. Throttle and auth failures are surfaced, never
// retried here.
type Gate struct {
	mu               sync.Mutex
	minInterval      time.Duration
	backoff          *retry.ExponentialBackoff
	transportRetries int
	state            RateLimitState
	logger           logger.Logger

	now func() time.Time
}

// New creates a request gate from rate limit configuration.
func New(cfg config.RateLimitConfig, log logger.Logger) *Gate {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Gate{
		minInterval: cfg.MinInterval,
		backoff: &retry.ExponentialBackoff{
			BaseDelay:  cfg.BackoffBase,
			MaxDelay:   cfg.BackoffMax,
			Multiplier: cfg.BackoffMultiplier,
		},
		transportRetries: cfg.TransportRetries,
		logger:           log,
		now:              time.Now,
	}
}

// Do runs one authenticated operation under the gate's policy. When the gate
// is inside a backoff window from earlier throttling, the call fails fast
// with a rate limit error instead of blocking until the window passes.
func (g *Gate) Do(ctx context.Context, op func(ctx context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if now.Before(g.state.BackoffDeadline) {
		wait := g.state.BackoffDeadline.Sub(now)
		g.logger.WarnWithFields("request rejected, still inside backoff window", map[string]interface{}{
			"retry_after": wait,
			"throttles":   g.state.ConsecutiveThrottles,
		})
		return errs.Newf(errs.KindRateLimit, "throttled, retry after %s", wait.Round(time.Millisecond))
	}

	if err := g.pace(ctx, now); err != nil {
		return err
	}

	err := retry.Do(func() error {
		return op(ctx)
	}, &retry.Config{
		MaxAttempts: g.transportRetries,
		Backoff:     &retry.ConstantBackoff{Delay: time.Second},
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      g.logger,
	})

	g.state.LastRequest = g.now()

	if err == nil {
		g.state.ConsecutiveThrottles = 0
		g.state.BackoffDeadline = time.Time{}
		return nil
	}

	if errs.KindOf(err) == errs.KindRateLimit {
		g.recordThrottle()
	}

	return err
}

// pace enforces the minimum spacing between consecutive requests. The wait
// is cancellable.
func (g *Gate) pace(ctx context.Context, now time.Time) error {
	if g.state.LastRequest.IsZero() || g.minInterval <= 0 {
		return nil
	}

	elapsed := now.Sub(g.state.LastRequest)
	if elapsed >= g.minInterval {
		return nil
	}

	return retry.Wait(ctx, g.minInterval-elapsed)
}

// recordThrottle advances the throttle counter and backoff deadline.
func (g *Gate) recordThrottle() {
	g.state.ConsecutiveThrottles++

	attempt := g.state.ConsecutiveThrottles
	if attempt > throttleCap {
		attempt = throttleCap
	}

	delay := g.backoff.NextDelay(attempt)
	g.state.BackoffDeadline = g.now().Add(delay)

	g.logger.WarnWithFields("platform throttle recorded", map[string]interface{}{
		"consecutive": g.state.ConsecutiveThrottles,
		"backoff":     delay,
	})
}

// State returns a snapshot of the gate's rate limit bookkeeping.
func (g *Gate) State() RateLimitState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
