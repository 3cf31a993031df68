package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/scrypster/notouch/internal/classifier"
	"github.com/scrypster/notouch/internal/engine"
	"github.com/scrypster/notouch/internal/extractor"
	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/pkg/types"
)

var (
	// ErrBusy is returned when an operation conflicts with the running phase.
	ErrBusy = errors.New("device busy")

	// ErrNotMonitoring is returned by StopMonitoring when no loop is running.
	ErrNotMonitoring = errors.New("not monitoring")
)

// Messages published while the device is idle or training.
const (
	MessageIdle     = "keep your hands off your face and press Train"
	MessageTraining = "training... %d%%"
	MessageTrained  = "training done: start monitoring when ready"
)

// DeviceConfig holds the tunables of a Device.
type DeviceConfig struct {
	Engine engine.Config

	// Metric is the classifier distance (default: euclidean).
	Metric types.DistanceMetric

	// DefaultSamples is used when Train is called with samples <= 0 (default: 50).
	DefaultSamples int

	// SampleInterval is the pause between training samples (default: 100ms).
	SampleInterval time.Duration
}

// DefaultDeviceConfig returns the device defaults.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Engine:         engine.DefaultConfig(),
		Metric:         types.MetricEuclidean,
		DefaultSamples: 50,
		SampleInterval: 100 * time.Millisecond,
	}
}

// DeviceDeps are the collaborators of a Device. Repository, Sink and Clock
// are optional.
type DeviceDeps struct {
	Store      storage.ExampleStore
	Repository storage.ExampleRepository
	Source     extractor.FrameSource
	Extractor  extractor.FeatureExtractor
	Action     engine.AlertAction
	Sink       engine.UISink
	Clock      engine.Clock
}

// Status is a point-in-time view of the device.
type Status struct {
	Phase       types.Phase             `json:"phase"`
	Examples    map[types.Label]int     `json:"examples"`
	Dimension   int                     `json:"dimension"`
	Metric      types.DistanceMetric    `json:"metric"`
	Training    *types.TrainingProgress `json:"training,omitempty"`
	LastSession *types.TrainingSession  `json:"last_session,omitempty"`
	UI          types.UIState           `json:"ui"`
	Loop        *engine.Stats           `json:"loop,omitempty"`
	Cache       *extractor.CacheStats   `json:"cache,omitempty"`
}

// cacheReporter is implemented by extractors that memoise embeddings.
type cacheReporter interface {
	Stats() extractor.CacheStats
}

// Device owns one example store and runs at most one phase against it:
// training or monitoring, never both.
type Device struct {
	cfg        DeviceConfig
	deps       DeviceDeps
	classifier *classifier.KNN
	trainer    *engine.Trainer

	mu          sync.Mutex
	phase       types.Phase
	cancel      context.CancelFunc
	done        chan struct{}
	loop        *engine.AlertLoop
	lastStats   *engine.Stats
	lastSession *types.TrainingSession
	ui          types.UIState
}

// NewDevice creates an idle device.
func NewDevice(cfg DeviceConfig, deps DeviceDeps) (*Device, error) {
	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if cfg.DefaultSamples < 1 {
		return nil, fmt.Errorf("%w: default samples must be >= 1, got %d", storage.ErrInvalidInput, cfg.DefaultSamples)
	}
	if cfg.SampleInterval < 0 {
		return nil, fmt.Errorf("%w: sample interval must be >= 0, got %v", storage.ErrInvalidInput, cfg.SampleInterval)
	}
	if deps.Store == nil || deps.Source == nil || deps.Extractor == nil || deps.Action == nil {
		return nil, fmt.Errorf("%w: store, source, extractor and action are required", storage.ErrInvalidInput)
	}
	if deps.Clock == nil {
		deps.Clock = engine.RealClock()
	}

	knn, err := classifier.New(deps.Store, cfg.Metric)
	if err != nil {
		return nil, err
	}

	d := &Device{
		cfg:        cfg,
		deps:       deps,
		classifier: knn,
		phase:      types.PhaseIdle,
		ui: types.UIState{
			Message:    MessageIdle,
			AlertState: types.AlertArmed,
		},
	}

	opts := []engine.TrainerOption{
		engine.WithClock(deps.Clock),
		engine.WithProgress(d.onTrainingProgress),
	}
	if deps.Repository != nil {
		opts = append(opts, engine.WithRecorder(deps.Repository))
	}
	d.trainer = engine.NewTrainer(deps.Store, deps.Extractor, opts...)

	return d, nil
}

// LoadExamples restores persisted examples into the store and returns how
// many were loaded. Examples whose dimension disagrees with the first one
// are skipped.
func (d *Device) LoadExamples(ctx context.Context) (int, error) {
	if d.deps.Repository == nil {
		return 0, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase != types.PhaseIdle {
		return 0, fmt.Errorf("%w: cannot load examples while %s", ErrBusy, d.phase)
	}

	examples, err := d.deps.Repository.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load examples: %w", err)
	}

	loaded, skipped := 0, 0
	for _, ex := range examples {
		if err := d.deps.Store.Insert(ex); err != nil {
			skipped++
			continue
		}
		loaded++
	}
	if skipped > 0 {
		log.Printf("services: WARNING - skipped %d persisted examples that do not fit the store", skipped)
	}
	log.Printf("services: restored %d examples", loaded)
	return loaded, nil
}

// Train collects samples examples under label and blocks until the session
// ends. samples <= 0 selects the configured default.
func (d *Device) Train(ctx context.Context, label types.Label, samples int) (*types.TrainingSession, error) {
	ctx, done, err := d.beginTraining(ctx, label)
	if err != nil {
		return nil, err
	}
	return d.runTraining(ctx, done, label, samples)
}

// StartTraining starts a training session in the background and returns once
// the training phase has been entered. The session outlives the caller's
// request; use CancelTraining to stop it.
func (d *Device) StartTraining(ctx context.Context, label types.Label, samples int) error {
	ctx, done, err := d.beginTraining(context.WithoutCancel(ctx), label)
	if err != nil {
		return err
	}
	go func() {
		_, _ = d.runTraining(ctx, done, label, samples)
	}()
	return nil
}

// CancelTraining stops the running training session. Examples already
// collected are kept.
func (d *Device) CancelTraining() error {
	d.mu.Lock()
	if d.phase != types.PhaseTraining {
		d.mu.Unlock()
		return fmt.Errorf("%w: not training", ErrBusy)
	}
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (d *Device) beginTraining(ctx context.Context, label types.Label) (context.Context, chan struct{}, error) {
	if label == "" {
		return nil, nil, fmt.Errorf("%w: label is required", storage.ErrInvalidInput)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase != types.PhaseIdle {
		return nil, nil, fmt.Errorf("%w: cannot train while %s", ErrBusy, d.phase)
	}

	ctx, cancel := context.WithCancel(ctx)
	d.phase = types.PhaseTraining
	d.cancel = cancel
	d.done = make(chan struct{})
	return ctx, d.done, nil
}

func (d *Device) runTraining(ctx context.Context, done chan struct{}, label types.Label, samples int) (*types.TrainingSession, error) {
	if samples <= 0 {
		samples = d.cfg.DefaultSamples
	}

	session, err := d.trainer.Train(ctx, label, samples, d.cfg.SampleInterval, d.deps.Source)

	state := types.UIState{
		Message:    MessageTrained,
		Label:      label,
		AlertState: types.AlertArmed,
		UpdatedAt:  d.deps.Clock.Now(),
	}
	if err != nil {
		state.Message = "training stopped: " + err.Error()
	}
	d.publish(state)

	d.mu.Lock()
	d.cancel()
	d.phase = types.PhaseIdle
	d.cancel = nil
	d.done = nil
	d.lastSession = session
	d.mu.Unlock()
	close(done)

	return session, err
}

func (d *Device) onTrainingProgress(p types.TrainingProgress) {
	d.publish(types.UIState{
		Message:    fmt.Sprintf(MessageTraining, int(p.Fraction()*100)),
		Label:      p.Label,
		AlertState: types.AlertArmed,
		UpdatedAt:  d.deps.Clock.Now(),
	})
}

// StartMonitoring starts the alert loop. The loop runs until StopMonitoring,
// Shutdown or cancellation of ctx.
func (d *Device) StartMonitoring(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase != types.PhaseIdle {
		return fmt.Errorf("%w: cannot monitor while %s", ErrBusy, d.phase)
	}

	loop, err := engine.NewAlertLoop(d.cfg.Engine, engine.AlertLoopDeps{
		Source:    d.deps.Source,
		Extractor: d.deps.Extractor,
		Predictor: d.classifier,
		Action:    d.deps.Action,
		Sink:      engine.UISinkFunc(d.publish),
		Clock:     d.deps.Clock,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	d.phase = types.PhaseMonitoring
	d.cancel = cancel
	d.done = done
	d.loop = loop

	go func() {
		defer close(done)
		_ = loop.Run(ctx)

		stats := loop.Stats()
		d.mu.Lock()
		d.phase = types.PhaseIdle
		d.loop = nil
		d.lastStats = &stats
		d.cancel = nil
		d.done = nil
		d.mu.Unlock()
		log.Printf("services: monitoring stopped after %d ticks (%d fires)", stats.Ticks, stats.Fires)
	}()

	return nil
}

// StopMonitoring stops the alert loop and waits for it to exit.
func (d *Device) StopMonitoring() error {
	d.mu.Lock()
	if d.phase != types.PhaseMonitoring {
		d.mu.Unlock()
		return ErrNotMonitoring
	}
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done
	return nil
}

// ActionFinished forwards the alert action's completion signal to the
// running loop. Signals while not monitoring are dropped.
func (d *Device) ActionFinished() {
	d.mu.Lock()
	loop := d.loop
	d.mu.Unlock()

	if loop != nil {
		loop.ActionFinished()
	}
}

// ClearExamples removes the examples of label, or all examples when label is
// empty, from the store and the repository. Clearing during training is
// refused; during monitoring the loop sees the change on its next tick.
func (d *Device) ClearExamples(ctx context.Context, label types.Label) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == types.PhaseTraining {
		return 0, fmt.Errorf("%w: cannot clear examples while training", ErrBusy)
	}

	var removed int
	if label == "" {
		removed = d.deps.Store.Len()
		d.deps.Store.ClearAll()
	} else {
		removed = d.deps.Store.Counts()[label]
		d.deps.Store.Clear(label)
	}

	if d.deps.Repository != nil {
		var err error
		if label == "" {
			err = d.deps.Repository.DeleteAll(ctx)
		} else {
			err = d.deps.Repository.Delete(ctx, label)
		}
		if err != nil {
			return removed, fmt.Errorf("failed to delete persisted examples: %w", err)
		}
	}

	log.Printf("services: cleared %d examples (label=%q)", removed, label)
	return removed, nil
}

// Examples returns the number of stored examples per label.
func (d *Device) Examples() map[types.Label]int {
	return d.deps.Store.Counts()
}

// Phase returns the running phase.
func (d *Device) Phase() types.Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Status returns a snapshot of the device.
func (d *Device) Status() Status {
	d.mu.Lock()
	st := Status{
		Phase:       d.phase,
		LastSession: d.lastSession,
		UI:          d.ui,
	}
	loop := d.loop
	if d.phase == types.PhaseTraining {
		p := d.trainer.Progress()
		st.Training = &p
	}
	if loop == nil && d.lastStats != nil {
		stats := *d.lastStats
		st.Loop = &stats
	}
	d.mu.Unlock()

	if loop != nil {
		stats := loop.Stats()
		st.Loop = &stats
	}
	st.Examples = d.deps.Store.Counts()
	st.Dimension = d.deps.Store.Dimension()
	st.Metric = d.classifier.Metric()
	if c, ok := d.deps.Extractor.(cacheReporter); ok {
		cache := c.Stats()
		st.Cache = &cache
	}
	return st
}

// Shutdown stops whichever phase is running and waits for it.
func (d *Device) Shutdown() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (d *Device) publish(state types.UIState) {
	d.mu.Lock()
	d.ui = state
	d.mu.Unlock()

	if d.deps.Sink != nil {
		d.deps.Sink.Publish(state)
	}
}
