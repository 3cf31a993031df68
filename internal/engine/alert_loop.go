package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/scrypster/notouch/internal/extractor"
	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/pkg/types"
)

// Messages published to the UI.
const (
	MessageNotTrained = "not trained yet: collect examples first"
	MessageWatching   = "watching"
	MessageTouched    = "hands off your face!"
)

// AlertLoopDeps are the collaborators of an AlertLoop.
type AlertLoopDeps struct {
	Source    extractor.FrameSource
	Extractor extractor.FeatureExtractor
	Predictor Predictor
	Action    AlertAction

	// Sink is optional.
	Sink UISink

	// Clock is optional; the wall clock is used when nil.
	Clock Clock
}

// AlertLoop polls the feed, classifies each frame and fires the alert action
// once per detection episode.
//
// Run owns all loop state. ActionFinished, Snapshot and Stats are safe to
// call from other goroutines.
type AlertLoop struct {
	cfg     Config
	deps    AlertLoopDeps
	machine *AlertMachine

	finished chan struct{}

	mu       sync.RWMutex
	snapshot types.UIState
	stats    Stats
	failing  bool // the previous tick failed; used to log error streaks once
	busy     bool // the action refused the last fire as still in flight
}

// NewAlertLoop creates a loop. The machine starts armed.
func NewAlertLoop(cfg Config, deps AlertLoopDeps) (*AlertLoop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid alert loop config: %w", err)
	}
	if deps.Source == nil || deps.Extractor == nil || deps.Predictor == nil || deps.Action == nil {
		return nil, fmt.Errorf("%w: source, extractor, predictor and action are required", storage.ErrInvalidInput)
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}

	return &AlertLoop{
		cfg:      cfg,
		deps:     deps,
		machine:  NewAlertMachine(cfg.Rearm),
		finished: make(chan struct{}, 16),
		snapshot: types.UIState{
			Message:    MessageNotTrained,
			AlertState: types.AlertArmed,
		},
	}, nil
}

// ActionFinished delivers the alert action's completion signal to the loop.
// It never blocks; signals beyond the buffer are coalesced.
func (l *AlertLoop) ActionFinished() {
	select {
	case l.finished <- struct{}{}:
	default:
	}
}

// Snapshot returns the most recently published UI state.
func (l *AlertLoop) Snapshot() types.UIState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Stats returns the loop counters.
func (l *AlertLoop) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// Run ticks until ctx is cancelled and then returns ctx.Err(). Per-tick
// failures are published as a not-ready state and never end the loop.
// Cancellation is checked only between ticks: a tick runs under a context
// that ctx cannot cancel, so an in-progress classification always completes
// (bounded by the extractor's own timeout).
func (l *AlertLoop) Run(ctx context.Context) error {
	log.Printf("engine: alert loop started (k=%d, threshold=%.2f, flagged=%q, rearm=%s)",
		l.cfg.K, l.cfg.Threshold, l.cfg.FlaggedLabel, l.machine.Policy())

	work := context.WithoutCancel(ctx)
	for {
		l.tick(work)

		if err := l.wait(ctx); err != nil {
			log.Printf("engine: alert loop stopped: %v", err)
			return err
		}
	}
}

// wait suspends for one poll interval, applying completion signals as they
// arrive.
func (l *AlertLoop) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := l.deps.Clock.After(l.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer:
			return nil
		case <-l.finished:
			l.applyFinished()
		}
	}
}

func (l *AlertLoop) drainFinished() {
	for {
		select {
		case <-l.finished:
			l.applyFinished()
		default:
			return
		}
	}
}

func (l *AlertLoop) applyFinished() {
	before := l.machine.State()
	l.machine.ActionFinished()
	l.logTransition(before, "action finished")
	l.setInFlight()
}

// logTransition logs a state change of the machine since before.
func (l *AlertLoop) logTransition(before types.AlertState, reason string) {
	after := l.machine.State()
	if after == before {
		return
	}
	if !types.IsValidAlertTransition(before, after) {
		log.Printf("engine: ERROR - invalid alert transition %s -> %s (%s)", before, after, reason)
		return
	}
	log.Printf("engine: alert %s -> %s (%s)", before, after, reason)
}

func (l *AlertLoop) setInFlight() {
	inFlight := l.machine.InFlight()
	l.mu.Lock()
	l.stats.ActionInFlight = inFlight
	l.mu.Unlock()
}

// fireOutcome is what became of a fire the machine asked for.
type fireOutcome int

const (
	fireStarted fireOutcome = iota
	fireBusy
	fireFailed
)

// fire starts the alert action. An action still busy with an alert started
// before this loop leaves the machine cooling down until that alert reports
// completion; any other failure counts as an immediate completion.
func (l *AlertLoop) fire(ctx context.Context, result *types.ClassificationResult) fireOutcome {
	err := l.deps.Action.Fire(ctx)
	switch {
	case err == nil:
		l.busy = false
		log.Printf("engine: detection %q (confidence %.2f), alert fired", result.Label, result.Confidence)
		return fireStarted

	case errors.Is(err, ErrActionInFlight):
		if !l.busy {
			log.Printf("engine: alert action still playing, waiting for it to finish")
			l.busy = true
		}
		return fireBusy

	default:
		log.Printf("engine: ERROR - alert action failed: %v", err)
		l.machine.ActionFinished()
		return fireFailed
	}
}

func (l *AlertLoop) tick(ctx context.Context) {
	l.mu.Lock()
	l.stats.Ticks++
	l.mu.Unlock()

	result, err := l.classify(ctx)
	l.drainFinished()
	if err != nil {
		l.fail(err)
		return
	}

	qualifying := result.Label == l.cfg.FlaggedLabel && result.Confidence > l.cfg.Threshold

	before := l.machine.State()
	outcome := fireBusy
	if l.machine.Observe(qualifying) {
		outcome = l.fire(ctx, result)
	}
	if qualifying {
		l.logTransition(before, "detection")
	} else {
		l.logTransition(before, "condition cleared")
	}

	l.mu.Lock()
	if l.failing {
		log.Printf("engine: classification recovered")
		l.failing = false
	}
	if qualifying {
		l.stats.Detections++
		switch outcome {
		case fireStarted:
			l.stats.Fires++
		case fireFailed:
			l.stats.FireErrors++
		default:
			l.stats.Suppressed++
		}
	}
	l.stats.ActionInFlight = l.machine.InFlight()
	l.mu.Unlock()

	message := MessageWatching
	if qualifying {
		message = MessageTouched
	}
	l.publish(types.UIState{
		Ready:      true,
		Touched:    qualifying,
		Message:    message,
		Label:      result.Label,
		Confidence: result.Confidence,
		AlertState: l.machine.State(),
		UpdatedAt:  l.deps.Clock.Now(),
	})
}

func (l *AlertLoop) classify(ctx context.Context) (*types.ClassificationResult, error) {
	frame, err := l.deps.Source.Acquire(ctx)
	if err != nil {
		return nil, asExtractionError("acquire frame", err)
	}
	embedding, err := l.deps.Extractor.Embed(ctx, frame)
	if err != nil {
		return nil, asExtractionError("embed frame", err)
	}
	return l.deps.Predictor.Predict(embedding, l.cfg.K)
}

func (l *AlertLoop) fail(err error) {
	l.mu.Lock()
	l.stats.Errors++
	first := !l.failing
	l.failing = true
	l.mu.Unlock()

	message := "not ready: " + err.Error()
	switch {
	case errors.Is(err, storage.ErrEmptyStore):
		message = MessageNotTrained
	case errors.Is(err, storage.ErrDimensionMismatch):
		// Not transient: the extractor and the stored examples disagree.
		log.Printf("engine: ERROR - %v", err)
	case first:
		log.Printf("engine: WARNING - tick skipped: %v", err)
	}

	l.publish(types.UIState{
		Ready:      false,
		Touched:    false,
		Message:    message,
		AlertState: l.machine.State(),
		UpdatedAt:  l.deps.Clock.Now(),
	})
}

func (l *AlertLoop) publish(state types.UIState) {
	l.mu.Lock()
	l.snapshot = state
	l.mu.Unlock()

	if l.deps.Sink != nil {
		l.deps.Sink.Publish(state)
	}
}
