package subprocclient

import (
	"context"
	"errors"
	"time"

	"github.com/baketa-translate/core/pkg/resilience/xbreaker"
	"github.com/baketa-translate/core/pkg/xlate"
)

// cancelExcludePolicy excludes caller-propagated cancellation from the
// breaker's failure statistics (spec §4.8: "Cancellation propagated by
// the caller does not count as a failure.").
type cancelExcludePolicy struct{}

func (cancelExcludePolicy) IsExcluded(err error) bool {
	return errors.Is(err, context.Canceled)
}

// BreakerConfig configures the circuit wrapping around a Client.
type BreakerConfig struct {
	ConsecutiveFailures uint32        // default 5
	CooldownPeriod      time.Duration // default 30s
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.CooldownPeriod == 0 {
		c.CooldownPeriod = 30 * time.Second
	}
	return c
}

// NewBreaker builds the circuit breaker used to guard Client calls.
// Timeouts count as failures (xlate.Error wraps them without an
// exclude match, so they fall through to the default failure path);
// only caller cancellation is excluded.
func NewBreaker(name string, cfg BreakerConfig) *xbreaker.Breaker {
	cfg = cfg.withDefaults()
	return xbreaker.NewBreaker(name,
		xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(cfg.ConsecutiveFailures)),
		xbreaker.WithExcludePolicy(cancelExcludePolicy{}),
	)
}

// BreakerClient wraps a Client with a circuit breaker: open-state
// calls fail fast with a retryable xlate.CircuitOpen error instead of
// reaching the subprocess.
type BreakerClient struct {
	inner   *Client
	breaker *xbreaker.Breaker
	name    string
}

// NewBreakerClient wraps client with breaker.
func NewBreakerClient(client *Client, breaker *xbreaker.Breaker, name string) *BreakerClient {
	return &BreakerClient{inner: client, breaker: breaker, name: name}
}

// Translate runs one request through the breaker.
func (b *BreakerClient) Translate(ctx context.Context, req xlate.TranslationRequest) xlate.TranslationResponse {
	resp, err := xbreaker.Execute(ctx, b.breaker, func() (xlate.TranslationResponse, error) {
		r := b.inner.Translate(ctx, req)
		if !r.Success && r.Error != nil {
			return r, r.Error
		}
		if !r.Success {
			return r, xlate.NewInternalError(nil)
		}
		return r, nil
	})
	if err != nil && xbreaker.IsOpen(err) {
		return errorResponse(req.RequestID, xlate.NewCircuitOpenError(b.name))
	}
	return resp
}

// State reports the breaker's current state, for operator inspection
// (translatectl's "breaker status").
func (b *BreakerClient) State() xbreaker.State {
	return b.breaker.State()
}

// Counts reports the breaker's rolling request counters.
func (b *BreakerClient) Counts() xbreaker.Counts {
	return b.breaker.Counts()
}

// Name returns the breaker's registered name.
func (b *BreakerClient) Name() string {
	return b.name
}
