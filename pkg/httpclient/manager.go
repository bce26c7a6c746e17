package httpclient

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitBreakerManager shares circuit breakers by name. Clients asking for
// the same name get the same breaker instance, so failure state is shared
// across everything talking to one upstream (for example one breaker per
// station catalog mirror).
type CircuitBreakerManager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	logger   *slog.Logger

	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
}

// NewCircuitBreakerManager creates a new manager. New breakers are created
// with the given parameters; zero values fall back to package defaults.
func NewCircuitBreakerManager(threshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers:     make(map[string]*CircuitBreaker),
		logger:       slog.Default(),
		threshold:    threshold,
		resetTimeout: resetTimeout,
		halfOpenMax:  halfOpenMax,
	}
}

// WithLogger sets the logger for the manager.
func (m *CircuitBreakerManager) WithLogger(logger *slog.Logger) *CircuitBreakerManager {
	m.logger = logger
	return m
}

// GetOrCreate returns the circuit breaker for the given name, creating it on
// first use. Multiple calls with the same name return the same instance.
func (m *CircuitBreakerManager) GetOrCreate(name string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, ok := m.breakers[name]; ok {
		return breaker
	}

	breaker := NewCircuitBreaker(m.threshold, m.resetTimeout, m.halfOpenMax)
	m.breakers[name] = breaker

	m.logger.Debug("created circuit breaker",
		slog.String("service", name),
	)

	return breaker
}

// Get returns an existing circuit breaker by name, or nil if not found.
func (m *CircuitBreakerManager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakers[name]
}

// Names returns the names of all active circuit breakers.
func (m *CircuitBreakerManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	return names
}

// GetAllStats returns statistics for all active circuit breakers.
func (m *CircuitBreakerManager) GetAllStats() map[string]CircuitBreakerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]CircuitBreakerStats, len(m.breakers))
	for name, breaker := range m.breakers {
		stats[name] = breaker.Stats()
	}
	return stats
}

// ResetBreaker resets a specific circuit breaker to closed state.
func (m *CircuitBreakerManager) ResetBreaker(name string) bool {
	m.mu.RLock()
	breaker, ok := m.breakers[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	breaker.Reset()
	m.logger.Info("circuit breaker reset", slog.String("service", name))
	return true
}

// ResetAll resets all circuit breakers to closed state.
func (m *CircuitBreakerManager) ResetAll() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for name, breaker := range m.breakers {
		breaker.Reset()
		m.logger.Debug("circuit breaker reset", slog.String("service", name))
		count++
	}
	return count
}
