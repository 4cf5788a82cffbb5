package provider

import (
	"sync"
	"time"

	"competitor-radar/internal/logger"
)

// CircuitBreaker stops calling a provider that keeps failing
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	failures            int
	totalRequests       int
	consecutiveFailures int
	isOpen              bool
	lastFailureTime     time.Time

	now   func() time.Time
	log   logger.Logger
	mutex sync.Mutex
}

// minRequestsForRate is the sample size before the failure rate is considered
const minRequestsForRate = 20

// NewCircuitBreaker creates a breaker that opens after failureThreshold consecutive
// blocking failures, or when 40% of at least 20 requests failed.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, log logger.Logger) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 2
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
		log:              log,
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed request. statusCode is 0 for transport errors.
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.consecutiveFailures++
	cb.totalRequests++
	cb.lastFailureTime = cb.now()

	if cb.consecutiveFailures >= cb.failureThreshold && isBlocking(statusCode) {
		cb.isOpen = true
		cb.log.Warn("CircuitBreaker: open after consecutive blocking errors", map[string]interface{}{
			"consecutive": cb.consecutiveFailures,
			"status_code": statusCode,
			"retry_after": cb.resetTimeout.String(),
		})
		return
	}

	if cb.totalRequests >= minRequestsForRate {
		rate := float64(cb.failures) / float64(cb.totalRequests)
		if rate >= 0.40 {
			cb.isOpen = true
			cb.log.Warn("CircuitBreaker: open on failure rate", map[string]interface{}{
				"failure_rate": rate,
				"failures":     cb.failures,
				"total":        cb.totalRequests,
			})
		}
	}
}

// CanProceed checks if requests are allowed, moving to half-open once the reset timeout passed
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
		cb.log.Info("CircuitBreaker: half-open", map[string]interface{}{"after": cb.resetTimeout.String()})
		cb.isOpen = false
		cb.failures = 0
		cb.totalRequests = 0
		cb.consecutiveFailures = 0
		return true
	}

	return false
}

// BreakerStatus is a point-in-time view of the breaker
type BreakerStatus struct {
	Open     bool `json:"open"`
	Failures int  `json:"failures"`
	Total    int  `json:"total"`
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() BreakerStatus {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return BreakerStatus{Open: cb.isOpen, Failures: cb.failures, Total: cb.totalRequests}
}

func isBlocking(statusCode int) bool {
	return statusCode == 0 || statusCode >= 500 || statusCode == 429 || statusCode == 403
}
