package modelprovider

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a token-bucket limiter, so a single
// workspace's AgentPool fan-out (spec §4.4 can burst
// number_of_sqls_to_generate concurrent calls) cannot monopolize a shared
// provider account's request budget.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a limiter allowing rps requests per
// second and a burst of burst.
func NewRateLimited(inner Provider, rps float64, burst int) *RateLimited {
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (p *RateLimited) Complete(ctx context.Context, model string, req CompletionRequest) (CompletionResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return CompletionResult{}, err
	}
	return p.inner.Complete(ctx, model, req)
}
