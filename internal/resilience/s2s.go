package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/roboface/pkg/provider/s2s"
)

var _ s2s.Provider = (*GuardedS2S)(nil)

// GuardedS2S is an s2s.Provider whose Connect runs through a
// [CircuitBreaker]. Sessions that were established are handed out unchanged.
type GuardedS2S struct {
	inner   s2s.Provider
	breaker *CircuitBreaker
}

// GuardS2S wraps p with a breaker built from cfg.
func GuardS2S(p s2s.Provider, cfg CircuitBreakerConfig) *GuardedS2S {
	return &GuardedS2S{inner: p, breaker: NewCircuitBreaker(cfg)}
}

// Connect opens a session unless the breaker is open, in which case it returns
// an error wrapping [ErrCircuitOpen] without contacting the service.
func (g *GuardedS2S) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	var sess s2s.SessionHandle
	err := g.breaker.Execute(func() error {
		var err error
		sess, err = g.inner.Connect(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resilience: connect: %w", err)
	}
	return sess, nil
}

// Capabilities delegates to the wrapped provider.
func (g *GuardedS2S) Capabilities() s2s.Capabilities { return g.inner.Capabilities() }

// Breaker exposes the breaker for health reporting.
func (g *GuardedS2S) Breaker() *CircuitBreaker { return g.breaker }
