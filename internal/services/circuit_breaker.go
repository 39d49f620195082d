package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned when a breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the current state of the circuit breaker
type CircuitBreakerState int

const (
	Closed CircuitBreakerState = iota
	Open
	HalfOpen
)

// String returns the lowercase state name.
func (s CircuitBreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" mapstructure:"failure_threshold"` // Failures before opening
	SuccessThreshold int           `json:"success_threshold" mapstructure:"success_threshold"` // Successes to close from half-open
	Timeout          time.Duration `json:"timeout" mapstructure:"timeout"`                     // Open duration before probing
	MaxRequests      int           `json:"max_requests" mapstructure:"max_requests"`           // Trial requests allowed while half-open
	ResetTimeout     time.Duration `json:"reset_timeout" mapstructure:"reset_timeout"`         // Idle time that clears failures
}

// CircuitBreakerStats holds statistics for the circuit breaker
type CircuitBreakerStats struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	RejectedRequests   int64     `json:"rejected_requests"`
	LastFailureTime    time.Time `json:"last_failure_time"`
	LastSuccessTime    time.Time `json:"last_success_time"`
	StateChanges       int64     `json:"state_changes"`
}

// CircuitBreaker guards one venue's quote endpoint. The lock is released
// while the wrapped call runs so concurrent routes on the same venue do not
// serialize behind a slow quote.
type CircuitBreaker struct {
	name            string
	config          CircuitBreakerConfig
	logger          *logrus.Logger
	now             func() time.Time
	mu              sync.RWMutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	lastStateChange time.Time
	requestCount    int
	stats           CircuitBreakerStats
}

func defaultCircuitBreakerConfig(config CircuitBreakerConfig) CircuitBreakerConfig {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 3
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 5 * time.Minute
	}
	return config
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *logrus.Logger) *CircuitBreaker {
	return newCircuitBreakerWithClock(name, config, logger, time.Now)
}

func newCircuitBreakerWithClock(name string, config CircuitBreakerConfig, logger *logrus.Logger, now func() time.Time) *CircuitBreaker {
	if logger == nil {
		logger = logrus.New()
	}
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		name:            name,
		config:          defaultCircuitBreakerConfig(config),
		logger:          logger,
		now:             now,
		state:           Closed,
		lastStateChange: now(),
	}
}

// Execute runs fn with circuit breaker protection. ErrCircuitOpen is returned
// without calling fn when the breaker rejects the request.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	cb.mu.Lock()
	cb.stats.TotalRequests++
	if !cb.allowLocked() {
		cb.stats.RejectedRequests++
		fields := logrus.Fields{
			"circuit_breaker": cb.name,
			"state":           cb.state.String(),
			"failure_count":   cb.failureCount,
		}
		cb.mu.Unlock()
		cb.logger.WithFields(fields).Debug("Circuit breaker rejecting request")
		return ErrCircuitOpen
	}
	cb.mu.Unlock()

	start := cb.now()
	err := fn(ctx)
	duration := cb.now().Sub(start)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailureLocked(err, duration)
	} else {
		cb.onSuccessLocked(duration)
	}
	return err
}

func (cb *CircuitBreaker) allowLocked() bool {
	now := cb.now()

	switch cb.state {
	case Closed:
		if cb.failureCount > 0 && now.Sub(cb.lastFailureTime) > cb.config.ResetTimeout {
			cb.failureCount = 0
		}
		return true

	case Open:
		if now.Sub(cb.lastStateChange) >= cb.config.Timeout {
			cb.setStateLocked(HalfOpen)
			cb.requestCount = 1
			cb.successCount = 0
			return true
		}
		return false

	case HalfOpen:
		if cb.requestCount < cb.config.MaxRequests {
			cb.requestCount++
			return true
		}
		return false

	default:
		return false
	}
}

func (cb *CircuitBreaker) onSuccessLocked(duration time.Duration) {
	cb.stats.SuccessfulRequests++
	cb.stats.LastSuccessTime = cb.now()

	switch cb.state {
	case Closed:
		cb.failureCount = 0

	case HalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.setStateLocked(Closed)
			cb.failureCount = 0
			cb.successCount = 0
			cb.requestCount = 0
		}
	}

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"state":           cb.state.String(),
		"duration_ms":     duration.Milliseconds(),
	}).Debug("Circuit breaker: successful execution")
}

func (cb *CircuitBreaker) onFailureLocked(err error, duration time.Duration) {
	now := cb.now()
	cb.stats.FailedRequests++
	cb.stats.LastFailureTime = now
	cb.lastFailureTime = now

	switch cb.state {
	case Closed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setStateLocked(Open)
		}

	case HalfOpen:
		cb.failureCount++
		cb.setStateLocked(Open)
		cb.successCount = 0
		cb.requestCount = 0
	}

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"state":           cb.state.String(),
		"error":           err.Error(),
		"duration_ms":     duration.Milliseconds(),
		"failure_count":   cb.failureCount,
	}).Warn("Circuit breaker: failed execution")
}

func (cb *CircuitBreaker) setStateLocked(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()
	cb.stats.StateChanges++

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"old_state":       oldState.String(),
		"new_state":       newState.String(),
		"failure_count":   cb.failureCount,
	}).Info("Circuit breaker state changed")
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns the current statistics
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.stats
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setStateLocked(Closed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.requestCount = 0
}

// CircuitBreakerManager hands out one breaker per venue.
type CircuitBreakerManager struct {
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
	logger   *logrus.Logger
	now      func() time.Time
	mu       sync.Mutex
}

// NewCircuitBreakerManager creates a manager whose breakers share config.
func NewCircuitBreakerManager(config CircuitBreakerConfig, logger *logrus.Logger) *CircuitBreakerManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &CircuitBreakerManager{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the breaker for name, creating it on first use.
func (cbm *CircuitBreakerManager) Get(name string) *CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if breaker, exists := cbm.breakers[name]; exists {
		return breaker
	}
	breaker := newCircuitBreakerWithClock(name, cbm.config, cbm.logger, cbm.now)
	cbm.breakers[name] = breaker
	return breaker
}

// GetAllStats returns statistics for all circuit breakers
func (cbm *CircuitBreakerManager) GetAllStats() map[string]CircuitBreakerStats {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	stats := make(map[string]CircuitBreakerStats, len(cbm.breakers))
	for name, breaker := range cbm.breakers {
		stats[name] = breaker.GetStats()
	}
	return stats
}

// OpenBreakers returns the names of breakers currently open.
func (cbm *CircuitBreakerManager) OpenBreakers() []string {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	var open []string
	for name, breaker := range cbm.breakers {
		if breaker.GetState() == Open {
			open = append(open, name)
		}
	}
	return open
}

// ResetAll resets all circuit breakers
func (cbm *CircuitBreakerManager) ResetAll() {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	for _, breaker := range cbm.breakers {
		breaker.Reset()
	}
}
