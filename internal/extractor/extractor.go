// Package extractor defines the frame and feature-extraction capabilities
// consumed by the training controller and the alert loop, plus adapters that
// talk to a camera snapshot endpoint and a model server over HTTP.
package extractor

import (
	"context"
	"errors"
	"time"

	"github.com/scrypster/notouch/pkg/types"
)

// ErrExtraction indicates a frame could not be captured or embedded.
// It is transient: the alert loop retries on its next tick.
var ErrExtraction = errors.New("feature extraction failed")

// Frame is a single captured image.
type Frame struct {
	// Data holds the encoded image bytes (e.g. JPEG)
	Data []byte

	// ContentType is the MIME type reported by the source
	ContentType string

	// CapturedAt is when the frame was acquired
	CapturedAt time.Time
}

// FrameSource produces the current frame of the live feed.
type FrameSource interface {
	Acquire(ctx context.Context) (Frame, error)
}

// FrameSourceFunc adapts a function to FrameSource.
type FrameSourceFunc func(ctx context.Context) (Frame, error)

// Acquire calls f(ctx).
func (f FrameSourceFunc) Acquire(ctx context.Context) (Frame, error) {
	return f(ctx)
}

// FeatureExtractor converts a frame into a fixed-length embedding.
// Implementations return errors wrapping ErrExtraction.
type FeatureExtractor interface {
	Embed(ctx context.Context, frame Frame) (types.Embedding, error)
}

// FeatureExtractorFunc adapts a function to FeatureExtractor.
type FeatureExtractorFunc func(ctx context.Context, frame Frame) (types.Embedding, error)

// Embed calls f(ctx, frame).
func (f FeatureExtractorFunc) Embed(ctx context.Context, frame Frame) (types.Embedding, error) {
	return f(ctx, frame)
}
