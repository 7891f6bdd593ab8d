package resilience

import (
	"context"

	"github.com/olitsch123/FOReportingv2/pkg/anthropic"
)

// GuardedClient wraps a model client with a circuit breaker. After repeated
// backend failures the breaker rejects calls without touching the wire, so a
// dead backend costs the document pipeline nothing beyond the first few
// probes.
type GuardedClient struct {
	inner   anthropic.Client
	breaker *CircuitBreaker
}

func NewGuardedClient(inner anthropic.Client, cfg CircuitConfig) *GuardedClient {
	return &GuardedClient{inner: inner, breaker: NewCircuitBreaker(cfg)}
}

func (g *GuardedClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return g.inner.CreateMessage(ctx, req)
	})
}

// State exposes the breaker position for health reporting.
func (g *GuardedClient) State() CircuitState {
	return g.breaker.State()
}
