package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/scrypster/notouch/pkg/types"
)

// HTTPExtractor sends frames to a model server and returns the embedding it
// computes. The server accepts the raw image as the request body on
// POST {BaseURL}/embed and replies with {"embedding": [...]}.
type HTTPExtractor struct {
	baseURL string
	client  *http.Client
	model   string
	timeout time.Duration
}

// HTTPExtractorConfig holds model server client configuration.
type HTTPExtractorConfig struct {
	// BaseURL is the model server URL (default: http://localhost:8501)
	BaseURL string

	// Model is passed as the "model" query parameter when set
	Model string

	// Timeout is the per-request timeout (default: 2s)
	Timeout time.Duration
}

// embedResponse represents the response from the /embed endpoint
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewHTTPExtractor creates a model server client.
// If configuration values are not provided, the following defaults are used:
//   - BaseURL: http://localhost:8501
//   - Timeout: 2 seconds
func NewHTTPExtractor(config HTTPExtractorConfig) *HTTPExtractor {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8501"
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}

	return &HTTPExtractor{
		baseURL: config.BaseURL,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		model:   config.Model,
		timeout: config.Timeout,
	}
}

// Embed posts the frame to the model server.
func (c *HTTPExtractor) Embed(ctx context.Context, frame Frame) (types.Embedding, error) {
	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrExtraction)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/embed"
	if c.model != "" {
		endpoint += "?" + url.Values{"model": {c.model}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrExtraction, err)
	}
	contentType := frame.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: model server returned status %d: %s", ErrExtraction, resp.StatusCode, string(body))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrExtraction, err)
	}

	if len(respData.Embedding) == 0 {
		return nil, fmt.Errorf("%w: model server returned empty embedding vector", ErrExtraction)
	}

	return types.EmbeddingFromFloat32(respData.Embedding), nil
}

// HealthCheck verifies that the model server is reachable via GET /health.
func (c *HTTPExtractor) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server health check returned status %d", resp.StatusCode)
	}
	return nil
}
