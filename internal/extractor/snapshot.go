package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxFrameBytes bounds a single snapshot download.
const maxFrameBytes = 16 << 20

// SnapshotSource acquires frames by fetching a still image from an IP camera
// snapshot URL. Device negotiation is left to the camera.
type SnapshotSource struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewSnapshotSource creates a source for url. A zero timeout means 2s.
func NewSnapshotSource(url string, timeout time.Duration) *SnapshotSource {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &SnapshotSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Acquire downloads the current snapshot.
func (s *SnapshotSource) Acquire(ctx context.Context) (Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: failed to create snapshot request: %v", ErrExtraction, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: snapshot request failed: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Frame{}, fmt.Errorf("%w: camera returned status %d", ErrExtraction, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: failed to read snapshot: %v", ErrExtraction, err)
	}
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: camera returned an empty snapshot", ErrExtraction)
	}

	return Frame{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		CapturedAt:  s.now(),
	}, nil
}
