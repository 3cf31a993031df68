package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/scrypster/notouch/internal/alert"
	"github.com/scrypster/notouch/internal/config"
	"github.com/scrypster/notouch/internal/engine"
	"github.com/scrypster/notouch/internal/extractor"
	"github.com/scrypster/notouch/internal/services"
	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/internal/storage/postgres"
	"github.com/scrypster/notouch/internal/storage/sqlite"
	"github.com/scrypster/notouch/pkg/types"
)

// openRepository opens the example repository selected by storage.engine.
func openRepository(ctx context.Context, cfg *config.Config) (storage.ExampleRepository, error) {
	switch cfg.Storage.Engine {
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := sqlite.NewExampleRepository(cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite repository: %w", err)
		}
		return repo, nil

	case "postgres":
		repo, err := postgres.NewExampleRepository(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres repository: %w", err)
		}
		if !repo.PgvectorAvailable() {
			log.Println("pgvector extension unavailable; storing embeddings as BYTEA only")
		}
		return repo, nil

	case "memory":
		return nopRepository{}, nil

	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

// nopRepository backs the memory engine: examples live only in the store.
type nopRepository struct{}

func (nopRepository) Save(context.Context, types.Example) error { return nil }

func (nopRepository) Load(context.Context) ([]types.Example, error) { return nil, nil }

func (nopRepository) Delete(context.Context, types.Label) error { return nil }

func (nopRepository) DeleteAll(context.Context) error { return nil }

func (nopRepository) Close() error { return nil }

// buildExtractor composes HTTP client, circuit breaker and cache. The bare
// client is returned as well for health checks.
func buildExtractor(cfg *config.Config) (extractor.FeatureExtractor, *extractor.HTTPExtractor, error) {
	client := extractor.NewHTTPExtractor(extractor.HTTPExtractorConfig{
		BaseURL: cfg.Extractor.URL,
		Model:   cfg.Extractor.Model,
		Timeout: cfg.Extractor.Timeout,
	})
	var fe extractor.FeatureExtractor = client

	breaker := extractor.DefaultCircuitBreakerConfig()
	breaker.MaxFailures = cfg.Extractor.BreakerFailures
	breaker.Timeout = cfg.Extractor.BreakerTimeout
	fe = extractor.NewBreakerExtractor(fe, breaker)

	if cfg.Extractor.CacheSize > 0 {
		cached, err := extractor.NewCachingExtractor(fe, cfg.Extractor.CacheSize)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create extractor cache: %w", err)
		}
		fe = cached
	}
	return fe, client, nil
}

// checkModelServer warns when the model server does not answer. Serving goes
// on: the loop reports not-ready until the server comes up.
func checkModelServer(ctx context.Context, cfg *config.Config, client *extractor.HTTPExtractor) error {
	if err := client.HealthCheck(ctx); err != nil {
		log.Printf("WARNING: model server at %s is not healthy: %v", cfg.Extractor.URL, err)
		return err
	}
	return nil
}

func buildFrameSource(cfg *config.Config) extractor.FrameSource {
	return extractor.NewSnapshotSource(cfg.Camera.SnapshotURL, cfg.Camera.Timeout)
}

// buildAlertAction creates the configured alert action. The returned close
// function releases anything the action started.
func buildAlertAction(cfg *config.Config, onFinished func()) (engine.AlertAction, func(), error) {
	nop := func() {}

	switch cfg.Alert.Action {
	case "log":
		return alert.NewLogAction(cfg.Alert.LogDuration, onFinished), nop, nil

	case "command":
		a, err := alert.NewCommandAction(cfg.Alert.Command, onFinished)
		if err != nil {
			return nil, nop, err
		}
		return a, nop, nil

	case "event":
		a := alert.NewEventAction(cfg.Storage.DataPath, cfg.Alert.EventTimeout, onFinished)
		if err := a.Start(); err != nil {
			return nil, nop, fmt.Errorf("failed to start event action: %w", err)
		}
		return a, a.Stop, nil

	default:
		return nil, nop, fmt.Errorf("unknown alert action %q", cfg.Alert.Action)
	}
}

func deviceConfig(cfg *config.Config) services.DeviceConfig {
	dc := services.DefaultDeviceConfig()
	dc.Engine.K = cfg.Classifier.K
	dc.Engine.Threshold = cfg.Alert.Threshold
	dc.Engine.FlaggedLabel = cfg.Alert.FlaggedLabel
	dc.Engine.PollInterval = cfg.Alert.PollInterval
	dc.Engine.Rearm = cfg.Alert.Rearm
	dc.Metric = cfg.Classifier.Metric
	dc.DefaultSamples = cfg.Training.Samples
	dc.SampleInterval = cfg.Training.Interval
	return dc
}
