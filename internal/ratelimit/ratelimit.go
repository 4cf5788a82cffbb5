// Package ratelimit paces outbound requests to business data providers.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLimited is returned when a request would exceed a window
var ErrLimited = errors.New("rate limit exceeded")

// RateLimiter enforces sliding per-minute, per-hour and per-day request budgets
type RateLimiter struct {
	requestsPerMinute int
	requestsPerHour   int
	requestsPerDay    int
	enabled           bool

	minuteWindow []time.Time
	hourWindow   []time.Time
	dayWindow    []time.Time
	now          func() time.Time
	mu           sync.Mutex
}

// NewRateLimiter creates a new rate limiter with the given limits. A zero limit disables that window.
func NewRateLimiter(requestsPerMinute, requestsPerHour, requestsPerDay int, enabled bool) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		requestsPerDay:    requestsPerDay,
		enabled:           enabled,
		minuteWindow:      make([]time.Time, 0),
		hourWindow:        make([]time.Time, 0),
		dayWindow:         make([]time.Time, 0),
		now:               time.Now,
	}
}

// WithClock overrides the time source
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

// AllowRequest records a request and returns true if every window still has room
func (rl *RateLimiter) AllowRequest() bool {
	_, ok := rl.reserve()
	return ok
}

// Wait blocks until a request fits the budget or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		retryIn, ok := rl.reserve()
		if ok {
			return nil
		}
		timer := time.NewTimer(retryIn)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records a request if allowed, otherwise returns how long until the oldest entry expires
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	if !rl.enabled {
		return 0, true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)

	if wait, full := windowFull(rl.minuteWindow, rl.requestsPerMinute, time.Minute, now); full {
		return wait, false
	}
	if wait, full := windowFull(rl.hourWindow, rl.requestsPerHour, time.Hour, now); full {
		return wait, false
	}
	if wait, full := windowFull(rl.dayWindow, rl.requestsPerDay, 24*time.Hour, now); full {
		return wait, false
	}

	rl.minuteWindow = append(rl.minuteWindow, now)
	rl.hourWindow = append(rl.hourWindow, now)
	rl.dayWindow = append(rl.dayWindow, now)
	return 0, true
}

func windowFull(window []time.Time, limit int, span time.Duration, now time.Time) (time.Duration, bool) {
	if limit <= 0 || len(window) < limit {
		return 0, false
	}
	wait := window[0].Add(span).Sub(now)
	if wait < 10*time.Millisecond {
		wait = 10 * time.Millisecond
	}
	return wait, true
}

// cleanup removes expired entries from the time windows
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.minuteWindow = filterTimes(rl.minuteWindow, now.Add(-time.Minute))
	rl.hourWindow = filterTimes(rl.hourWindow, now.Add(-time.Hour))
	rl.dayWindow = filterTimes(rl.dayWindow, now.Add(-24*time.Hour))
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	result := make([]time.Time, 0, len(times))
	for _, t := range times {
		if t.After(cutoff) {
			result = append(result, t)
		}
	}
	return result
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	if !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanup(rl.now())

	return Stats{
		Enabled:             true,
		RequestsLastMinute:  len(rl.minuteWindow),
		RequestsLastHour:    len(rl.hourWindow),
		RequestsLastDay:     len(rl.dayWindow),
		LimitPerMinute:      rl.requestsPerMinute,
		LimitPerHour:        rl.requestsPerHour,
		LimitPerDay:         rl.requestsPerDay,
		RemainingThisMinute: remaining(rl.requestsPerMinute, len(rl.minuteWindow)),
		RemainingThisHour:   remaining(rl.requestsPerHour, len(rl.hourWindow)),
		RemainingThisDay:    remaining(rl.requestsPerDay, len(rl.dayWindow)),
	}
}

// Stats contains rate limiter statistics
type Stats struct {
	Enabled             bool `json:"enabled"`
	RequestsLastMinute  int  `json:"requests_last_minute"`
	RequestsLastHour    int  `json:"requests_last_hour"`
	RequestsLastDay     int  `json:"requests_last_day"`
	LimitPerMinute      int  `json:"limit_per_minute"`
	LimitPerHour        int  `json:"limit_per_hour"`
	LimitPerDay         int  `json:"limit_per_day"`
	RemainingThisMinute int  `json:"remaining_this_minute"`
	RemainingThisHour   int  `json:"remaining_this_hour"`
	RemainingThisDay    int  `json:"remaining_this_day"`
}

// Reset clears all tracked requests
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.minuteWindow = make([]time.Time, 0)
	rl.hourWindow = make([]time.Time, 0)
	rl.dayWindow = make([]time.Time, 0)
}

func remaining(limit, used int) int {
	if limit <= 0 {
		return -1
	}
	if used > limit {
		return 0
	}
	return limit - used
}
