package provider

import (
	"context"
	"errors"
	"fmt"

	"competitor-radar/internal/logger"
	"competitor-radar/internal/models"
	"competitor-radar/internal/ratelimit"
)

// Guard wraps a provider with request pacing and a circuit breaker
type Guard struct {
	next    BusinessDataProvider
	limiter *ratelimit.RateLimiter
	breaker *CircuitBreaker
	log     logger.Logger
}

// NewGuard creates a guard. limiter may be nil.
func NewGuard(next BusinessDataProvider, limiter *ratelimit.RateLimiter, breaker *CircuitBreaker, log logger.Logger) *Guard {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Guard{next: next, limiter: limiter, breaker: breaker, log: log}
}

// Fetch implements BusinessDataProvider
func (g *Guard) Fetch(ctx context.Context, businessID string) (*models.CompetitorData, error) {
	if g.breaker != nil && !g.breaker.CanProceed() {
		st := g.breaker.GetStatus()
		return nil, fmt.Errorf("%w (%d/%d failures)", ErrCircuitOpen, st.Failures, st.Total)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limit: %w", err)
		}
	}

	data, err := g.next.Fetch(ctx, businessID)
	if g.breaker == nil {
		return data, err
	}

	switch {
	case err == nil:
		g.breaker.RecordSuccess()
	case errors.Is(err, ErrNotFound), errors.Is(err, context.Canceled):
		// the provider answered or the caller gave up; neither says the provider is unhealthy
	default:
		code := statusCodeOf(err)
		g.breaker.RecordFailure(code)
		g.log.Warn("ProviderGuard: fetch failed", map[string]interface{}{
			"business_id": businessID,
			"status_code": code,
			"error":       err.Error(),
		})
	}
	return data, err
}

// Status reports the breaker and limiter state for the admin API
func (g *Guard) Status() map[string]interface{} {
	out := map[string]interface{}{}
	if g.breaker != nil {
		out["circuit_breaker"] = g.breaker.GetStatus()
	}
	if g.limiter != nil {
		out["rate_limit"] = g.limiter.GetStats()
	}
	return out
}
