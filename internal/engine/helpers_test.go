package engine

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/scrypster/notouch/internal/extractor"
	"github.com/scrypster/notouch/pkg/types"
)

// instantClock fires every After immediately and records the requested durations.
type instantClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newInstantClock() *instantClock {
	return &instantClock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
}

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *instantClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// stoppedClock never fires, so only cancellation ends a wait.
type stoppedClock struct{}

func (stoppedClock) Now() time.Time                       { return time.Time{} }
func (stoppedClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

// predictorFunc adapts a function to Predictor.
type predictorFunc func(query types.Embedding, k int) (*types.ClassificationResult, error)

func (f predictorFunc) Predict(query types.Embedding, k int) (*types.ClassificationResult, error) {
	return f(query, k)
}

func fixedPrediction(label types.Label, confidence float64) predictorFunc {
	return func(types.Embedding, int) (*types.ClassificationResult, error) {
		return &types.ClassificationResult{Label: label, Confidence: confidence, K: 3}, nil
	}
}

// mockAction is a testify mock of AlertAction.
type mockAction struct {
	mock.Mock
}

func (m *mockAction) Fire(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func newMockAction(err error) *mockAction {
	a := &mockAction{}
	a.On("Fire", mock.Anything).Return(err)
	return a
}

// countingSource returns a frame per call and runs hook with the 1-based call number.
func countingSource(hook func(n int)) extractor.FrameSource {
	var mu sync.Mutex
	n := 0
	return extractor.FrameSourceFunc(func(ctx context.Context) (extractor.Frame, error) {
		mu.Lock()
		n++
		current := n
		mu.Unlock()
		if hook != nil {
			hook(current)
		}
		return extractor.Frame{Data: []byte{byte(current)}}, nil
	})
}

// constantExtractor embeds every frame as the same vector.
func constantExtractor(e types.Embedding) extractor.FeatureExtractor {
	return extractor.FeatureExtractorFunc(func(ctx context.Context, frame extractor.Frame) (types.Embedding, error) {
		return e.Clone(), nil
	})
}

// ctxExtractor embeds like constantExtractor but fails once ctx is done, the
// way a real request-backed extractor does.
func ctxExtractor(e types.Embedding) extractor.FeatureExtractor {
	return extractor.FeatureExtractorFunc(func(ctx context.Context, frame extractor.Frame) (types.Embedding, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return e.Clone(), nil
	})
}

// recordingSink keeps every published state.
type recordingSink struct {
	mu     sync.Mutex
	states []types.UIState
}

func (s *recordingSink) Publish(state types.UIState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *recordingSink) States() []types.UIState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.UIState(nil), s.states...)
}
