package httpclient

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern. After threshold
// consecutive failures the circuit opens; once resetTimeout elapses a
// limited number of probe requests pass through in half-open state.
type CircuitBreaker struct {
	mu              sync.RWMutex
	state           CircuitState
	failures        int // consecutive failures
	halfOpenCount   int
	lastFailureTime time.Time

	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int

	// Total counters, never reset, for stats reporting.
	totalRequests  int64
	totalSuccesses int64
	totalFailures  int64
}

// NewCircuitBreaker creates a new circuit breaker with the given parameters.
// Zero or negative parameters fall back to package defaults.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultCircuitThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultCircuitTimeout
	}
	if halfOpenMax <= 0 {
		halfOpenMax = DefaultCircuitHalfOpenMax
	}
	return &CircuitBreaker{
		state:        CircuitClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		halfOpenMax:  halfOpenMax,
	}
}

// Allow returns true if the request should be allowed to proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if time.Since(cb.lastFailureTime) >= cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenCount = 1 // count this first probe request
			return true
		}
		return false

	case CircuitHalfOpen:
		if cb.halfOpenCount < cb.halfOpenMax {
			cb.halfOpenCount++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	cb.totalSuccesses++

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.failures = 0
		cb.halfOpenCount = 0
	} else {
		cb.failures = 0
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = time.Now()
	cb.totalRequests++
	cb.totalFailures++

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.threshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		// Any failure in half-open returns to open
		cb.state = CircuitOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.halfOpenCount = 0
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// CircuitBreakerStats holds statistics about a circuit breaker.
type CircuitBreakerStats struct {
	State          CircuitState `json:"state"`
	Failures       int          `json:"failures"` // consecutive failures
	TotalRequests  int64        `json:"total_requests"`
	TotalSuccesses int64        `json:"total_successes"`
	TotalFailures  int64        `json:"total_failures"`
	LastFailure    time.Time    `json:"last_failure,omitempty"`
}

// Stats returns current statistics for this circuit breaker.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitBreakerStats{
		State:          cb.state,
		Failures:       cb.failures,
		TotalRequests:  cb.totalRequests,
		TotalSuccesses: cb.totalSuccesses,
		TotalFailures:  cb.totalFailures,
		LastFailure:    cb.lastFailureTime,
	}
}
