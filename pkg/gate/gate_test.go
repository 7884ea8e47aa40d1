package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxrss/pkg/config"
	errs "wxrss/pkg/errors"
	"wxrss/pkg/logger"
)

func newTestGate(cfg config.RateLimitConfig) *Gate {
	return New(cfg, logger.NewTestLogger())
}

func quietConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		MinInterval:       0,
		BackoffBase:       30 * time.Second,
		BackoffMax:        5 * time.Minute,
		BackoffMultiplier: 2.0,
		TransportRetries:  2,
	}
}

func TestDoSuccess(t *testing.T) {
	g := newTestGate(quietConfig())

	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, g.State().LastRequest.IsZero())
}

func TestMinimumSpacing(t *testing.T) {
	cfg := quietConfig()
	cfg.MinInterval = 100 * time.Millisecond
	g := newTestGate(cfg)

	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, g.Do(context.Background(), noop))

	start := time.Now()
	require.NoError(t, g.Do(context.Background(), noop))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond, "second request must respect the spacing floor")
}

func TestSpacingWaitIsCancellable(t *testing.T) {
	cfg := quietConfig()
	cfg.MinInterval = 10 * time.Second
	g := newTestGate(cfg)

	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, g.Do(context.Background(), noop))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := g.Do(ctx, noop)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSingleFlight(t *testing.T) {
	g := newTestGate(quietConfig())

	var inFlight int32
	var maxInFlight int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxInFlight)
					if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight), "operations must be serialized")
}

func TestThrottleFailsCurrentCall(t *testing.T) {
	g := newTestGate(quietConfig())

	err := g.Do(context.Background(), func(ctx context.Context) error {
		return errs.WithCode(errs.KindRateLimit, 200013, "freq control")
	})

	require.Error(t, err)
	assert.Equal(t, errs.KindRateLimit, errs.KindOf(err))

	state := g.State()
	assert.Equal(t, 1, state.ConsecutiveThrottles)
	assert.True(t, state.BackoffDeadline.After(time.Now()))
}

func TestBackoffDeadlineAdvancesMonotonically(t *testing.T) {
	g := newTestGate(quietConfig())

	clock := time.Now()
	g.now = func() time.Time { return clock }

	throttled := func(ctx context.Context) error {
		return errs.WithCode(errs.KindRateLimit, 200013, "freq control")
	}

	var lastDeadline time.Time
	for i := 1; i <= 5; i++ {
		// Step the clock past the previous backoff window so the call
		// reaches the platform again.
		if deadline := g.State().BackoffDeadline; !deadline.IsZero() {
			clock = deadline.Add(time.Second)
		}

		err := g.Do(context.Background(), throttled)
		require.Error(t, err)
		assert.Equal(t, errs.KindRateLimit, errs.KindOf(err))

		state := g.State()
		assert.Equal(t, i, state.ConsecutiveThrottles)
		assert.True(t, state.BackoffDeadline.After(lastDeadline),
			"deadline must advance with each consecutive throttle")
		lastDeadline = state.BackoffDeadline
	}

	// Growth caps after three consecutive throttles: the fifth window is no
	// longer than the capped delay.
	state := g.State()
	capped := 30 * time.Second * 4 // base * multiplier^(cap-1)
	assert.LessOrEqual(t, state.BackoffDeadline.Sub(clock), capped+time.Second)
}

func TestFailFastInsideBackoffWindow(t *testing.T) {
	g := newTestGate(quietConfig())

	require.Error(t, g.Do(context.Background(), func(ctx context.Context) error {
		return errs.WithCode(errs.KindRateLimit, 200013, "freq control")
	}))

	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, errs.KindRateLimit, errs.KindOf(err))
	assert.Equal(t, 0, calls, "operation must not run while inside the backoff window")
}

func TestSuccessResetsThrottleState(t *testing.T) {
	g := newTestGate(quietConfig())

	clock := time.Now()
	g.now = func() time.Time { return clock }

	require.Error(t, g.Do(context.Background(), func(ctx context.Context) error {
		return errs.WithCode(errs.KindRateLimit, 200013, "freq control")
	}))

	clock = g.State().BackoffDeadline.Add(time.Second)
	require.NoError(t, g.Do(context.Background(), func(ctx context.Context) error {
		return nil
	}))

	state := g.State()
	assert.Equal(t, 0, state.ConsecutiveThrottles)
	assert.True(t, state.BackoffDeadline.IsZero())
}

func TestTransportFailuresRetriedWithinBound(t *testing.T) {
	g := newTestGate(quietConfig())

	attempts := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errs.New(errs.KindNetwork, "connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestTransportFailuresSurfaceAfterBound(t *testing.T) {
	g := newTestGate(quietConfig())

	attempts := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errs.New(errs.KindNetwork, "connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts, "transport retries are bounded")
	assert.Equal(t, errs.KindNetwork, errs.KindOf(err))
}

func TestAuthFailureNotRetried(t *testing.T) {
	g := newTestGate(quietConfig())

	attempts := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errs.New(errs.KindTokenExpired, "expired")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, errs.KindTokenExpired, errs.KindOf(err))
	assert.Equal(t, 0, g.State().ConsecutiveThrottles)
}
