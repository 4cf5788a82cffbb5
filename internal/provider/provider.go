// Package provider fetches public business metrics from external data sources.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"competitor-radar/internal/config"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/models"
	"competitor-radar/internal/ratelimit"

	"github.com/redis/go-redis/v9"
)

// BusinessDataProvider fetches the current public metrics of a business
type BusinessDataProvider interface {
	Fetch(ctx context.Context, businessID string) (*models.CompetitorData, error)
}

var (
	// ErrNotFound means the provider does not know the business
	ErrNotFound = errors.New("business not found")
	// ErrCircuitOpen means calls are suspended after repeated failures
	ErrCircuitOpen = errors.New("provider circuit open")
)

// StatusError is a non-2xx provider response
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d for %s", e.StatusCode, e.URL)
}

// statusCodeOf extracts the HTTP status for breaker accounting, 0 for transport errors
func statusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// New builds the configured provider stack: source, then guard, then the optional Redis cache
func New(cfg *config.Config, rdb redis.UniversalClient, log logger.Logger) (BusinessDataProvider, error) {
	pc := cfg.Provider
	client := &http.Client{Timeout: pc.GetTimeout()}

	var source BusinessDataProvider
	switch pc.Type {
	case "", "http":
		p, err := NewHTTPProvider(HTTPConfig{
			BaseURL:   pc.BaseURL,
			APIKey:    pc.APIKey,
			UserAgent: pc.UserAgent,
		}, client)
		if err != nil {
			return nil, err
		}
		source = p
	case "page":
		var fetcher PageFetcher = NewHTTPPageFetcher(client, pc.UserAgent)
		if pc.Headless {
			fetcher = NewHeadlessFetcher(HeadlessConfig{
				ChromePath: pc.ChromePath,
				UserAgent:  pc.UserAgent,
				Timeout:    pc.GetTimeout(),
			}, log)
		}
		source = NewPageProvider(pc.PageURLTemplate, fetcher).
			WithPacer(ratelimit.NewPacer(pc.PageConcurrency, pc.GetPageDelay(), pc.GetPageDelay()/2))
	default:
		return nil, fmt.Errorf("unknown provider type: %s", pc.Type)
	}

	limiter := ratelimit.NewRateLimiter(
		cfg.RateLimit.RequestsPerMinute,
		cfg.RateLimit.RequestsPerHour,
		cfg.RateLimit.RequestsPerDay,
		cfg.RateLimit.Enabled,
	)
	breaker := NewCircuitBreaker(pc.BreakerThreshold, pc.GetBreakerReset(), log)
	guarded := NewGuard(source, limiter, breaker, log)

	if rdb != nil && pc.CacheTTLSeconds > 0 {
		return NewCache(guarded, rdb, pc.GetCacheTTL(), log), nil
	}
	return guarded, nil
}
