package extractor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/notouch/pkg/types"
)

// ErrCircuitOpen is returned when the circuit breaker is in open state
// and rejects requests to prevent hammering a failing model server.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds the configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 5
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning to half-open.
	// Default: 10 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required in half-open
	// state to close the circuit again.
	// Default: 2
	HalfOpenMaxSuccesses uint32
}

// CircuitBreakerMetrics holds metrics about circuit breaker operations.
type CircuitBreakerMetrics struct {
	TotalRequests        uint64 `json:"total_requests"`
	TotalSuccesses       uint64 `json:"total_successes"`
	TotalFailures        uint64 `json:"total_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
}

// DefaultCircuitBreakerConfig returns the breaker settings used when none are configured.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:          5,
		Timeout:              10 * time.Second,
		HalfOpenMaxSuccesses: 2,
	}
}

// BreakerExtractor wraps a FeatureExtractor with gobreaker.
//
// When closed, calls pass through. After MaxFailures consecutive failures the
// circuit opens and Embed fails fast with an error wrapping both
// ErrExtraction and ErrCircuitOpen, so the alert loop treats it like any other
// transient extraction failure. After Timeout the circuit lets test calls
// through and closes again after HalfOpenMaxSuccesses successes.
type BreakerExtractor struct {
	next    FeatureExtractor
	breaker *gobreaker.CircuitBreaker
	mu      sync.RWMutex
	metrics CircuitBreakerMetrics
}

// NewBreakerExtractor wraps next with a circuit breaker.
// Zero fields in config fall back to DefaultCircuitBreakerConfig.
func NewBreakerExtractor(next FeatureExtractor, config CircuitBreakerConfig) *BreakerExtractor {
	defaults := DefaultCircuitBreakerConfig()
	if config.MaxFailures == 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.HalfOpenMaxSuccesses == 0 {
		config.HalfOpenMaxSuccesses = defaults.HalfOpenMaxSuccesses
	}

	settings := gobreaker.Settings{
		Name:        "ExtractorCircuitBreaker",
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0, // Don't clear counts periodically
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("extractor: circuit breaker %s -> %s", from, to)
		},
	}

	return &BreakerExtractor{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Embed runs the wrapped extractor through the circuit breaker.
func (b *BreakerExtractor) Embed(ctx context.Context, frame Frame) (types.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Embed(ctx, frame)
	})

	if err != nil {
		b.record(false)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrExtraction, ErrCircuitOpen)
		}
		return nil, err
	}

	b.record(true)
	return result.(types.Embedding), nil
}

// State returns the current state of the circuit breaker.
// Possible values: "closed", "open", "half-open"
func (b *BreakerExtractor) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Metrics returns the current metrics for the circuit breaker.
func (b *BreakerExtractor) Metrics() CircuitBreakerMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := b.breaker.Counts()
	return CircuitBreakerMetrics{
		TotalRequests:        b.metrics.TotalRequests,
		TotalSuccesses:       b.metrics.TotalSuccesses,
		TotalFailures:        b.metrics.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

func (b *BreakerExtractor) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.TotalRequests++
	if success {
		b.metrics.TotalSuccesses++
	} else {
		b.metrics.TotalFailures++
	}
}
