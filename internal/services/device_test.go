package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/notouch/internal/engine"
	"github.com/scrypster/notouch/internal/extractor"
	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/internal/storage/memory"
	"github.com/scrypster/notouch/pkg/types"
)

// ============================================================================
// Test fakes
// ============================================================================

type instantClock struct{}

func (instantClock) Now() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

type memRepo struct {
	mu       sync.Mutex
	examples []types.Example
}

func (r *memRepo) Save(_ context.Context, ex types.Example) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.examples = append(r.examples, ex)
	return nil
}

func (r *memRepo) Load(context.Context) ([]types.Example, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Example(nil), r.examples...), nil
}

func (r *memRepo) Delete(_ context.Context, label types.Label) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.examples[:0:0]
	for _, ex := range r.examples {
		if ex.Label != label {
			kept = append(kept, ex)
		}
	}
	r.examples = kept
	return nil
}

func (r *memRepo) DeleteAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.examples = nil
	return nil
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.examples)
}

var _ storage.ExampleRepository = (*memRepo)(nil)

type countingAction struct {
	fires atomic.Int32
}

func (a *countingAction) Fire(context.Context) error {
	a.fires.Add(1)
	return nil
}

type sinkRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (s *sinkRecorder) Publish(state types.UIState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, state.Message)
}

func (s *sinkRecorder) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func frames() extractor.FrameSource {
	return extractor.FrameSourceFunc(func(ctx context.Context) (extractor.Frame, error) {
		return extractor.Frame{Data: []byte("frame")}, nil
	})
}

func embedAs(e types.Embedding) extractor.FeatureExtractor {
	return extractor.FeatureExtractorFunc(func(ctx context.Context, f extractor.Frame) (types.Embedding, error) {
		return e.Clone(), nil
	})
}

type deviceFixture struct {
	device *Device
	store  *memory.ExampleStore
	repo   *memRepo
	action *countingAction
	sink   *sinkRecorder
}

func newDeviceFixture(t *testing.T, deps DeviceDeps) *deviceFixture {
	t.Helper()

	f := &deviceFixture{
		store:  memory.NewExampleStore(),
		repo:   &memRepo{},
		action: &countingAction{},
		sink:   &sinkRecorder{},
	}
	deps.Store = f.store
	deps.Repository = f.repo
	deps.Action = f.action
	deps.Sink = f.sink
	if deps.Source == nil {
		deps.Source = frames()
	}
	if deps.Extractor == nil {
		deps.Extractor = embedAs(types.Embedding{1, 1})
	}
	if deps.Clock == nil {
		deps.Clock = instantClock{}
	}

	cfg := DefaultDeviceConfig()
	cfg.Engine.PollInterval = time.Millisecond

	d, err := NewDevice(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(d.Shutdown)
	f.device = d
	return f
}

// ============================================================================
// Training
// ============================================================================

func TestDevice_Train(t *testing.T) {
	f := newDeviceFixture(t, DeviceDeps{})

	session, err := f.device.Train(context.Background(), types.LabelFlagged, 5)
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, 5, session.Completed)
	assert.Equal(t, map[types.Label]int{types.LabelFlagged: 5}, f.device.Examples())
	assert.Equal(t, 5, f.repo.Len(), "every example is persisted")
	assert.Equal(t, types.PhaseIdle, f.device.Phase())

	messages := f.sink.Messages()
	assert.Contains(t, messages, "training... 100%")
	assert.Equal(t, MessageTrained, messages[len(messages)-1])

	status := f.device.Status()
	assert.Equal(t, session, status.LastSession)
	assert.Equal(t, 2, status.Dimension)
}

func TestDevice_TrainDefaultSamples(t *testing.T) {
	f := newDeviceFixture(t, DeviceDeps{})

	session, err := f.device.Train(context.Background(), types.LabelNeutral, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDeviceConfig().DefaultSamples, session.Completed)
}

func TestDevice_TrainRequiresLabel(t *testing.T) {
	f := newDeviceFixture(t, DeviceDeps{})

	_, err := f.device.Train(context.Background(), "", 3)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestDevice_PhasesAreExclusive(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	blocking := extractor.FrameSourceFunc(func(ctx context.Context) (extractor.Frame, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
			return extractor.Frame{}, ctx.Err()
		}
		return extractor.Frame{Data: []byte("frame")}, nil
	})
	f := newDeviceFixture(t, DeviceDeps{Source: blocking})

	require.NoError(t, f.device.StartTraining(context.Background(), types.LabelFlagged, 1))
	<-entered

	assert.Equal(t, types.PhaseTraining, f.device.Phase())
	assert.ErrorIs(t, f.device.StartMonitoring(context.Background()), ErrBusy)
	_, err := f.device.Train(context.Background(), types.LabelNeutral, 1)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.device.ClearExamples(context.Background(), "")
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.Eventually(t, func() bool {
		return f.device.Phase() == types.PhaseIdle
	}, time.Second, time.Millisecond)

	require.NoError(t, f.device.StartMonitoring(context.Background()))
	_, err = f.device.Train(context.Background(), types.LabelNeutral, 1)
	assert.ErrorIs(t, err, ErrBusy)
	require.NoError(t, f.device.StopMonitoring())
}

func TestDevice_CancelTrainingKeepsExamples(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	source := extractor.FrameSourceFunc(func(ctx context.Context) (extractor.Frame, error) {
		if calls.Add(1) == 3 {
			close(gate)
			<-ctx.Done()
			return extractor.Frame{}, ctx.Err()
		}
		return extractor.Frame{Data: []byte("frame")}, nil
	})
	f := newDeviceFixture(t, DeviceDeps{Source: source})

	require.NoError(t, f.device.StartTraining(context.Background(), types.LabelFlagged, 10))
	<-gate
	require.NoError(t, f.device.CancelTraining())

	assert.Equal(t, 2, f.store.Len())
	status := f.device.Status()
	require.NotNil(t, status.LastSession)
	assert.Equal(t, 2, status.LastSession.Completed)
	assert.NotEmpty(t, status.LastSession.Err)

	assert.ErrorIs(t, f.device.CancelTraining(), ErrBusy)
}

func TestDevice_StatusReportsMetricAndCache(t *testing.T) {
	f := newDeviceFixture(t, DeviceDeps{})
	status := f.device.Status()
	assert.Equal(t, types.MetricEuclidean, status.Metric)
	assert.Nil(t, status.Cache, "no cache in the extractor chain")

	cached, err := extractor.NewCachingExtractor(embedAs(types.Embedding{1, 1}), 4)
	require.NoError(t, err)
	f = newDeviceFixture(t, DeviceDeps{Extractor: cached})

	_, err = f.device.Train(context.Background(), types.LabelNeutral, 3)
	require.NoError(t, err)

	status = f.device.Status()
	require.NotNil(t, status.Cache)
	assert.Equal(t, extractor.CacheStats{Hits: 2, Misses: 1, Entries: 1}, *status.Cache,
		"identical frames are embedded once")
}

// ============================================================================
// Monitoring
// ============================================================================

func TestDevice_MonitoringFiresAndStops(t *testing.T) {
	f := newDeviceFixture(t, DeviceDeps{Clock: engine.RealClock()})
	for range 3 {
		_, err := f.store.Add(types.LabelFlagged, types.Embedding{1, 1})
		require.NoError(t, err)
	}

	require.NoError(t, f.device.StartMonitoring(context.Background()))
	assert.Equal(t, types.PhaseMonitoring, f.device.Phase())

	require.Eventually(t, func() bool {
		return f.device.Status().UI.Touched
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return f.device.Status().Loop.Ticks >= 5
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), f.action.fires.Load(), "cooling down until the action finishes")

	f.device.ActionFinished()
	require.Eventually(t, func() bool {
		return f.action.fires.Load() == 2
	}, time.Second, time.Millisecond)

	require.NoError(t, f.device.StopMonitoring())
	assert.Equal(t, types.PhaseIdle, f.device.Phase())
	assert.ErrorIs(t, f.device.StopMonitoring(), ErrNotMonitoring)

	status := f.device.Status()
	require.NotNil(t, status.Loop)
	assert.Equal(t, uint64(2), status.Loop.Fires)
}

func TestDevice_MonitoringEmptyStoreIsNotReady(t *testing.T) {
	f := newDeviceFixture(t, DeviceDeps{Clock: engine.RealClock()})

	require.NoError(t, f.device.StartMonitoring(context.Background()))
	require.Eventually(t, func() bool {
		return f.device.Status().UI.Message == engine.MessageNotTrained
	}, time.Second, time.Millisecond)
	assert.False(t, f.device.Status().UI.Ready)
	assert.Zero(t, f.action.fires.Load())
	require.NoError(t, f.device.StopMonitoring())
}

func TestDevice_ActionFinishedWhileIdleIsDropped(t *testing.T) {
	f := newDeviceFixture(t, DeviceDeps{})
	assert.NotPanics(t, f.device.ActionFinished)
}

// ============================================================================
// Examples
// ============================================================================

func TestDevice_LoadExamples(t *testing.T) {
	f := newDeviceFixture(t, DeviceDeps{})
	now := time.Now()
	f.repo.examples = []types.Example{
		{ID: "a", Label: types.LabelNeutral, Embedding: types.Embedding{0, 0}, CreatedAt: now},
		{ID: "b", Label: types.LabelFlagged, Embedding: types.Embedding{1, 1}, CreatedAt: now},
		{ID: "c", Label: types.LabelFlagged, Embedding: types.Embedding{1, 1, 1}, CreatedAt: now},
	}

	n, err := f.device.LoadExamples(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[types.Label]int{types.LabelNeutral: 1, types.LabelFlagged: 1}, f.device.Examples())
}

func TestDevice_ClearExamples(t *testing.T) {
	f := newDeviceFixture(t, DeviceDeps{})
	_, err := f.device.Train(context.Background(), types.LabelNeutral, 2)
	require.NoError(t, err)
	_, err = f.device.Train(context.Background(), types.LabelFlagged, 3)
	require.NoError(t, err)

	removed, err := f.device.ClearExamples(context.Background(), types.LabelFlagged)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, map[types.Label]int{types.LabelNeutral: 2}, f.device.Examples())
	assert.Equal(t, 2, f.repo.Len())

	removed, err = f.device.ClearExamples(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Empty(t, f.device.Examples())
	assert.Zero(t, f.repo.Len())
}

func TestNewDevice_Validation(t *testing.T) {
	_, err := NewDevice(DefaultDeviceConfig(), DeviceDeps{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	cfg := DefaultDeviceConfig()
	cfg.DefaultSamples = 0
	_, err = NewDevice(cfg, DeviceDeps{
		Store:     memory.NewExampleStore(),
		Source:    frames(),
		Extractor: embedAs(types.Embedding{1}),
		Action:    &countingAction{},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	cfg = DefaultDeviceConfig()
	cfg.Metric = "manhattan"
	_, err = NewDevice(cfg, DeviceDeps{
		Store:     memory.NewExampleStore(),
		Source:    frames(),
		Extractor: embedAs(types.Embedding{1}),
		Action:    &countingAction{},
	})
	assert.Error(t, err)
}
