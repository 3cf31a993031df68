// Package engine provides the training controller and the continuous
// classify-and-alert loop. Both run as a single logical stream of control
// against an example store and suspend only between discrete steps, through
// an injected Clock, so cancellation is observed within one interval.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/notouch/internal/classifier"
	"github.com/scrypster/notouch/pkg/types"
)

// Config holds configuration for the alert loop.
type Config struct {
	// K is the number of neighbors examined per classification (default: 3).
	K int

	// Threshold is the confidence a flagged prediction must exceed (default: 0.8).
	Threshold float64

	// FlaggedLabel is the label that triggers the alert (default: "1").
	FlaggedLabel types.Label

	// PollInterval is the suspension between ticks (default: 200ms).
	PollInterval time.Duration

	// Rearm selects when a cooling-down alert becomes armed again
	// (default: on-action-complete).
	Rearm types.RearmPolicy
}

// DefaultConfig returns a Config with the device defaults.
func DefaultConfig() Config {
	return Config{
		K:            classifier.DefaultK,
		Threshold:    0.8,
		FlaggedLabel: types.LabelFlagged,
		PollInterval: 200 * time.Millisecond,
		Rearm:        types.RearmOnActionComplete,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("K must be >= 1, got %d", c.K)
	}

	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("Threshold must be in [0,1], got %v", c.Threshold)
	}

	if c.FlaggedLabel == "" {
		return fmt.Errorf("FlaggedLabel is required")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("PollInterval must be > 0, got %v", c.PollInterval)
	}

	if !types.IsValidRearmPolicy(c.Rearm) {
		return fmt.Errorf("Rearm must be one of %v, got %q", types.ValidRearmPolicies, c.Rearm)
	}

	return nil
}

// Predictor answers class-membership queries. *classifier.KNN implements it.
type Predictor interface {
	Predict(query types.Embedding, k int) (*types.ClassificationResult, error)
}

// ErrActionInFlight is returned by AlertAction.Fire while a previous alert
// has not finished yet.
var ErrActionInFlight = errors.New("alert already in flight")

// AlertAction is the external alert capability. Fire must not block on the
// alert itself: it starts the action and returns. Completion is reported
// separately through AlertLoop.ActionFinished.
type AlertAction interface {
	Fire(ctx context.Context) error
}

// UISink receives the latest UI state. Publish must not block.
type UISink interface {
	Publish(state types.UIState)
}

// UISinkFunc adapts a function to UISink.
type UISinkFunc func(state types.UIState)

// Publish calls f(state).
func (f UISinkFunc) Publish(state types.UIState) {
	f(state)
}

// Stats are counters maintained by the alert loop.
type Stats struct {
	Ticks      uint64 `json:"ticks"`
	Detections uint64 `json:"detections"`
	Fires      uint64 `json:"fires"`
	Suppressed uint64 `json:"suppressed"`
	FireErrors uint64 `json:"fire_errors"`
	Errors     uint64 `json:"errors"`

	ActionInFlight bool `json:"action_in_flight"`
}
