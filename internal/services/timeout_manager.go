package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Operation types with their own timeout budget.
const (
	OpQuote         = "quote"
	OpFeeData       = "fee_data"
	OpBlock         = "block"
	OpVenueRegistry = "venue_registry"
	OpTokenPrice    = "token_price"
	OpOptimization  = "optimization"
)

// TimeoutConfig defines timeout settings for different operation types
type TimeoutConfig struct {
	Quote         time.Duration `mapstructure:"quote"`
	FeeData       time.Duration `mapstructure:"fee_data"`
	Block         time.Duration `mapstructure:"block"`
	VenueRegistry time.Duration `mapstructure:"venue_registry"`
	TokenPrice    time.Duration `mapstructure:"token_price"`
	Optimization  time.Duration `mapstructure:"optimization"`
}

// DefaultTimeoutConfig returns default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Quote:         2 * time.Second,
		FeeData:       3 * time.Second,
		Block:         3 * time.Second,
		VenueRegistry: 5 * time.Second,
		TokenPrice:    2 * time.Second,
		Optimization:  15 * time.Second,
	}
}

// WithDefaults returns a copy of c with zero timeouts taken from DefaultTimeoutConfig.
func (c TimeoutConfig) WithDefaults() *TimeoutConfig {
	d := DefaultTimeoutConfig()
	if c.Quote <= 0 {
		c.Quote = d.Quote
	}
	if c.FeeData <= 0 {
		c.FeeData = d.FeeData
	}
	if c.Block <= 0 {
		c.Block = d.Block
	}
	if c.VenueRegistry <= 0 {
		c.VenueRegistry = d.VenueRegistry
	}
	if c.TokenPrice <= 0 {
		c.TokenPrice = d.TokenPrice
	}
	if c.Optimization <= 0 {
		c.Optimization = d.Optimization
	}
	return &c
}

// TimeoutError reports that an external call exceeded its budget.
type TimeoutError struct {
	OperationType string
	Timeout       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.OperationType, e.Timeout)
}

// Unwrap lets errors.Is match context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// TimeoutManager bounds every external call by an operation-specific timeout
// and tracks the calls in flight so Shutdown can cancel them.
type TimeoutManager struct {
	config         *TimeoutConfig
	logger         *logrus.Logger
	activeContexts map[uint64]context.CancelFunc
	nextID         atomic.Uint64
	timeouts       atomic.Int64
	mu             sync.RWMutex
	defaultTimeout time.Duration
}

// NewTimeoutManager creates a new timeout manager
func NewTimeoutManager(config *TimeoutConfig, logger *logrus.Logger) *TimeoutManager {
	if config == nil {
		config = DefaultTimeoutConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &TimeoutManager{
		config:         config,
		logger:         logger,
		activeContexts: make(map[uint64]context.CancelFunc),
		defaultTimeout: 5 * time.Second,
	}
}

// TimeoutFor returns the budget for an operation type. Unknown types and
// unset durations use the default timeout.
func (tm *TimeoutManager) TimeoutFor(operationType string) time.Duration {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	var timeout time.Duration
	switch operationType {
	case OpQuote:
		timeout = tm.config.Quote
	case OpFeeData:
		timeout = tm.config.FeeData
	case OpBlock:
		timeout = tm.config.Block
	case OpVenueRegistry:
		timeout = tm.config.VenueRegistry
	case OpTokenPrice:
		timeout = tm.config.TokenPrice
	case OpOptimization:
		timeout = tm.config.Optimization
	}
	if timeout <= 0 {
		return tm.defaultTimeout
	}
	return timeout
}

func (tm *TimeoutManager) begin(parent context.Context, operationType string) (context.Context, uint64, time.Duration) {
	timeout := tm.TimeoutFor(operationType)
	ctx, cancel := context.WithTimeout(parent, timeout)
	id := tm.nextID.Add(1)

	tm.mu.Lock()
	tm.activeContexts[id] = cancel
	tm.mu.Unlock()
	return ctx, id, timeout
}

func (tm *TimeoutManager) complete(id uint64) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if cancel, exists := tm.activeContexts[id]; exists {
		cancel()
		delete(tm.activeContexts, id)
	}
}

// Execute runs operation under the timeout for operationType. The call
// returns as soon as the deadline passes even if operation ignores ctx.
func (tm *TimeoutManager) Execute(parent context.Context, operationType string, operation func(ctx context.Context) error) error {
	_, err := withTimeout(parent, tm, operationType, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})
	return err
}

// withTimeout is the typed form of Execute.
func withTimeout[T any](parent context.Context, tm *TimeoutManager, operationType string, operation func(ctx context.Context) (T, error)) (T, error) {
	ctx, id, timeout := tm.begin(parent, operationType)
	defer tm.complete(id)

	type outcome struct {
		data T
		err  error
	}
	resultChan := make(chan outcome, 1)
	go func() {
		data, err := operation(ctx)
		resultChan <- outcome{data: data, err: err}
	}()

	select {
	case result := <-resultChan:
		return result.data, result.err

	case <-ctx.Done():
		var zero T
		if parent.Err() != nil {
			return zero, parent.Err()
		}
		tm.timeouts.Add(1)
		tm.logger.WithFields(logrus.Fields{
			"operation_type": operationType,
			"timeout":        timeout.String(),
		}).Warn("Operation timed out")
		return zero, &TimeoutError{OperationType: operationType, Timeout: timeout}
	}
}

// GetActiveOperationCount returns the number of active operations
func (tm *TimeoutManager) GetActiveOperationCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.activeContexts)
}

// TimeoutCount returns how many calls have hit their deadline.
func (tm *TimeoutManager) TimeoutCount() int64 {
	return tm.timeouts.Load()
}

// UpdateTimeoutConfig updates the timeout configuration
func (tm *TimeoutManager) UpdateTimeoutConfig(config *TimeoutConfig) {
	if config == nil {
		return
	}
	tm.mu.Lock()
	tm.config = config
	tm.mu.Unlock()
	tm.logger.Info("Timeout configuration updated")
}

// Shutdown cancels every operation still in flight.
func (tm *TimeoutManager) Shutdown() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for id, cancel := range tm.activeContexts {
		cancel()
		delete(tm.activeContexts, id)
	}
	tm.logger.Info("Timeout manager shutdown complete")
}
