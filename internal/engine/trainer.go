package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/notouch/internal/extractor"
	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/pkg/types"
)

// Trainer collects labeled examples from the live feed.
type Trainer struct {
	store      storage.ExampleStore
	extractor  extractor.FeatureExtractor
	clock      Clock
	recorder   storage.ExampleRepository
	onProgress func(types.TrainingProgress)

	mu       sync.Mutex
	progress types.TrainingProgress
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithRecorder persists every inserted example to repo.
func WithRecorder(repo storage.ExampleRepository) TrainerOption {
	return func(t *Trainer) {
		t.recorder = repo
	}
}

// WithProgress registers a callback invoked after each collected sample.
func WithProgress(fn func(types.TrainingProgress)) TrainerOption {
	return func(t *Trainer) {
		t.onProgress = fn
	}
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) TrainerOption {
	return func(t *Trainer) {
		t.clock = clock
	}
}

// NewTrainer creates a training controller writing into store.
func NewTrainer(store storage.ExampleStore, fx extractor.FeatureExtractor, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		store:     store,
		extractor: fx,
		clock:     RealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Progress returns the progress of the current or last session.
func (t *Trainer) Progress() types.TrainingProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Train collects exactly sampleCount examples under label: acquire a frame,
// embed it, insert the example, then wait sampleInterval before the next one.
//
// The first acquisition or extraction failure aborts the session with an
// error wrapping extractor.ErrExtraction. Cancellation is observed between
// samples and returns ctx.Err(). In both cases the examples already inserted
// are kept. The returned session is never nil.
func (t *Trainer) Train(ctx context.Context, label types.Label, sampleCount int, sampleInterval time.Duration, source extractor.FrameSource) (*types.TrainingSession, error) {
	session := &types.TrainingSession{
		ID:        uuid.New().String(),
		Label:     label,
		Requested: sampleCount,
		StartedAt: t.clock.Now(),
	}

	err := t.run(ctx, session, sampleInterval, source)

	session.FinishedAt = t.clock.Now()
	if err != nil {
		session.Err = err.Error()
		log.Printf("engine: training session %s for label %q stopped after %d/%d samples: %v",
			session.ID, label, session.Completed, sampleCount, err)
		return session, err
	}

	log.Printf("engine: training session %s collected %d samples for label %q",
		session.ID, session.Completed, label)
	return session, nil
}

func (t *Trainer) run(ctx context.Context, session *types.TrainingSession, interval time.Duration, source extractor.FrameSource) error {
	if session.Requested < 1 {
		return fmt.Errorf("%w: sample count must be >= 1, got %d", storage.ErrInvalidInput, session.Requested)
	}
	if interval < 0 {
		return fmt.Errorf("%w: sample interval must be >= 0, got %v", storage.ErrInvalidInput, interval)
	}
	if source == nil {
		return fmt.Errorf("%w: frame source is required", storage.ErrInvalidInput)
	}

	t.report(session)

	for i := 0; i < session.Requested; i++ {
		if i > 0 {
			if err := sleep(ctx, t.clock, interval); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		// A started sample always completes; cancellation lands between samples.
		embedding, err := t.sample(context.WithoutCancel(ctx), source)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i+1, err)
		}

		example := types.Example{
			ID:        uuid.New().String(),
			Label:     session.Label,
			Embedding: embedding,
			SessionID: session.ID,
			CreatedAt: t.clock.Now(),
		}
		if err := t.store.Insert(example); err != nil {
			return fmt.Errorf("sample %d: %w", i+1, err)
		}
		session.Completed++

		if t.recorder != nil {
			// The store is authoritative; a failed write only costs durability.
			if err := t.recorder.Save(context.WithoutCancel(ctx), example); err != nil {
				log.Printf("engine: WARNING - failed to persist example %s: %v", example.ID, err)
			}
		}

		t.report(session)
	}

	return nil
}

// sample acquires one frame and embeds it. Failures that are not already
// classified are reported as extraction errors.
func (t *Trainer) sample(ctx context.Context, source extractor.FrameSource) (types.Embedding, error) {
	frame, err := source.Acquire(ctx)
	if err != nil {
		return nil, asExtractionError("acquire frame", err)
	}

	embedding, err := t.extractor.Embed(ctx, frame)
	if err != nil {
		return nil, asExtractionError("embed frame", err)
	}
	return embedding, nil
}

func (t *Trainer) report(session *types.TrainingSession) {
	p := types.TrainingProgress{
		SessionID: session.ID,
		Label:     session.Label,
		Completed: session.Completed,
		Total:     session.Requested,
	}

	t.mu.Lock()
	t.progress = p
	t.mu.Unlock()

	if t.onProgress != nil {
		t.onProgress(p)
	}
}

func asExtractionError(op string, err error) error {
	if errors.Is(err, extractor.ErrExtraction) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, extractor.ErrExtraction, err)
}
