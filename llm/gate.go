package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/wikifeed/feedengine/pkg/models"
)

// Gate protects a Provider with a non-blocking rate limit and a per-call
// timeout. Calls over budget fail immediately so callers take their
// fallback path instead of queueing.
type Gate struct {
	provider Provider
	limiter  *rate.Limiter
	timeout  time.Duration
}

// NewGate wraps provider. rps <= 0 disables rate limiting; timeout <= 0
// disables the per-call deadline.
func NewGate(provider Provider, rps float64, burst int, timeout time.Duration) *Gate {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Gate{
		provider: provider,
		limiter:  rate.NewLimiter(limit, burst),
		timeout:  timeout,
	}
}

// Model returns the wrapped provider's model.
func (g *Gate) Model() string {
	return g.provider.Model()
}

// Complete implements Provider.
func (g *Gate) Complete(ctx context.Context, p Prompt) (string, error) {
	if !g.limiter.Allow() {
		return "", models.Errorf(models.KindRateBudgetExhausted, "llm.complete", "provider rate limit reached")
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	out, err := g.provider.Complete(ctx, p)
	if err != nil {
		return "", models.NewError(models.KindUpstreamUnavailable, "llm.complete", err)
	}
	return out, nil
}
