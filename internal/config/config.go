// Package config provides configuration management for notouch.
// Settings start from defaults, are overlaid by an optional YAML file and
// finally by environment variables with the NOTOUCH_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/notouch/pkg/types"
)

// Config holds all configuration settings for the notouch device.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Alert      AlertConfig      `yaml:"alert"`
	Training   TrainingConfig   `yaml:"training"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Camera     CameraConfig     `yaml:"camera"`
	Security   SecurityConfig   `yaml:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 6464)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
}

// StorageConfig contains example persistence configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // sqlite, postgres or memory (default: sqlite)
	DataPath    string `yaml:"data_path"`    // Path to data directory (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // Required when Engine is postgres
}

// ClassifierConfig contains KNN settings.
type ClassifierConfig struct {
	K      int                  `yaml:"k"`      // Neighbors per prediction (default: 3)
	Metric types.DistanceMetric `yaml:"metric"` // euclidean or cosine (default: euclidean)
}

// AlertConfig contains monitoring loop and alert action settings.
type AlertConfig struct {
	FlaggedLabel types.Label       `yaml:"flagged_label"` // default: "1"
	NeutralLabel types.Label       `yaml:"neutral_label"` // default: "0"
	Threshold    float64           `yaml:"threshold"`     // default: 0.8
	PollInterval time.Duration     `yaml:"poll_interval"` // default: 200ms
	Rearm        types.RearmPolicy `yaml:"rearm"`         // default: on-action-complete

	// Action selects the alert: log, command or event (default: log).
	Action       string        `yaml:"action"`
	Command      []string      `yaml:"command"`       // argv for the command action
	LogDuration  time.Duration `yaml:"log_duration"`  // default: 2s
	EventTimeout time.Duration `yaml:"event_timeout"` // default: 10s
}

// TrainingConfig contains training session settings.
type TrainingConfig struct {
	Samples  int           `yaml:"samples"`  // default: 50
	Interval time.Duration `yaml:"interval"` // default: 100ms
}

// ExtractorConfig contains feature extraction service settings.
type ExtractorConfig struct {
	URL             string        `yaml:"url"`              // default: http://localhost:8501
	Model           string        `yaml:"model"`            // optional model name
	Timeout         time.Duration `yaml:"timeout"`          // default: 2s
	CacheSize       int           `yaml:"cache_size"`       // 0 disables the cache (default: 64)
	BreakerFailures uint32        `yaml:"breaker_failures"` // default: 5
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`  // default: 10s
}

// CameraConfig contains the frame source settings.
type CameraConfig struct {
	SnapshotURL string        `yaml:"snapshot_url"` // default: http://localhost:8080/snapshot.jpg
	Timeout     time.Duration `yaml:"timeout"`      // default: 1s
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	Mode      string  `yaml:"mode"`       // development or production (default: development)
	APIToken  string  `yaml:"api_token"`  // required in production
	RateLimit float64 `yaml:"rate_limit"` // requests per second per client (default: 20)
	RateBurst int     `yaml:"rate_burst"` // default: 40
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 6464,
			Host: "127.0.0.1",
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Classifier: ClassifierConfig{
			K:      3,
			Metric: types.MetricEuclidean,
		},
		Alert: AlertConfig{
			FlaggedLabel: types.LabelFlagged,
			NeutralLabel: types.LabelNeutral,
			Threshold:    0.8,
			PollInterval: 200 * time.Millisecond,
			Rearm:        types.RearmOnActionComplete,
			Action:       "log",
			LogDuration:  2 * time.Second,
			EventTimeout: 10 * time.Second,
		},
		Training: TrainingConfig{
			Samples:  50,
			Interval: 100 * time.Millisecond,
		},
		Extractor: ExtractorConfig{
			URL:             "http://localhost:8501",
			Timeout:         2 * time.Second,
			CacheSize:       64,
			BreakerFailures: 5,
			BreakerTimeout:  10 * time.Second,
		},
		Camera: CameraConfig{
			SnapshotURL: "http://localhost:8080/snapshot.jpg",
			Timeout:     time.Second,
		},
		Security: SecurityConfig{
			Mode:      "development",
			RateLimit: 20,
			RateBurst: 40,
		},
	}
}

// LoadConfig builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then NOTOUCH_* environment variables. The
// result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on the current values.
func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("NOTOUCH_PORT", c.Server.Port)
	c.Server.Host = getEnv("NOTOUCH_HOST", c.Server.Host)

	c.Storage.Engine = getEnv("NOTOUCH_STORAGE_ENGINE", c.Storage.Engine)
	c.Storage.DataPath = getEnv("NOTOUCH_DATA_PATH", c.Storage.DataPath)
	c.Storage.PostgresDSN = getEnv("NOTOUCH_POSTGRES_DSN", c.Storage.PostgresDSN)

	c.Classifier.K = getEnvInt("NOTOUCH_K", c.Classifier.K)
	c.Classifier.Metric = types.DistanceMetric(getEnv("NOTOUCH_METRIC", string(c.Classifier.Metric)))

	c.Alert.FlaggedLabel = types.Label(getEnv("NOTOUCH_FLAGGED_LABEL", string(c.Alert.FlaggedLabel)))
	c.Alert.NeutralLabel = types.Label(getEnv("NOTOUCH_NEUTRAL_LABEL", string(c.Alert.NeutralLabel)))
	c.Alert.Threshold = getEnvFloat("NOTOUCH_THRESHOLD", c.Alert.Threshold)
	c.Alert.PollInterval = getEnvDuration("NOTOUCH_POLL_INTERVAL", c.Alert.PollInterval)
	c.Alert.Rearm = types.RearmPolicy(getEnv("NOTOUCH_REARM", string(c.Alert.Rearm)))
	c.Alert.Action = getEnv("NOTOUCH_ALERT_ACTION", c.Alert.Action)
	if value := os.Getenv("NOTOUCH_ALERT_COMMAND"); value != "" {
		c.Alert.Command = strings.Fields(value)
	}
	c.Alert.LogDuration = getEnvDuration("NOTOUCH_ALERT_DURATION", c.Alert.LogDuration)
	c.Alert.EventTimeout = getEnvDuration("NOTOUCH_EVENT_TIMEOUT", c.Alert.EventTimeout)

	c.Training.Samples = getEnvInt("NOTOUCH_TRAINING_SAMPLES", c.Training.Samples)
	c.Training.Interval = getEnvDuration("NOTOUCH_TRAINING_INTERVAL", c.Training.Interval)

	c.Extractor.URL = getEnv("NOTOUCH_EXTRACTOR_URL", c.Extractor.URL)
	c.Extractor.Model = getEnv("NOTOUCH_EXTRACTOR_MODEL", c.Extractor.Model)
	c.Extractor.Timeout = getEnvDuration("NOTOUCH_EXTRACTOR_TIMEOUT", c.Extractor.Timeout)
	c.Extractor.CacheSize = getEnvInt("NOTOUCH_EXTRACTOR_CACHE_SIZE", c.Extractor.CacheSize)
	c.Extractor.BreakerFailures = uint32(getEnvInt("NOTOUCH_BREAKER_FAILURES", int(c.Extractor.BreakerFailures)))
	c.Extractor.BreakerTimeout = getEnvDuration("NOTOUCH_BREAKER_TIMEOUT", c.Extractor.BreakerTimeout)

	c.Camera.SnapshotURL = getEnv("NOTOUCH_CAMERA_URL", c.Camera.SnapshotURL)
	c.Camera.Timeout = getEnvDuration("NOTOUCH_CAMERA_TIMEOUT", c.Camera.Timeout)

	c.Security.Mode = getEnv("NOTOUCH_SECURITY_MODE", c.Security.Mode)
	c.Security.APIToken = getEnv("NOTOUCH_API_TOKEN", c.Security.APIToken)
	c.Security.RateLimit = getEnvFloat("NOTOUCH_RATE_LIMIT", c.Security.RateLimit)
	c.Security.RateBurst = getEnvInt("NOTOUCH_RATE_BURST", c.Security.RateBurst)
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port))
	}

	switch c.Storage.Engine {
	case "sqlite", "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.engine must be sqlite, postgres or memory, got %q", c.Storage.Engine))
	}

	if c.Classifier.K < 1 {
		errs = append(errs, fmt.Errorf("classifier.k must be >= 1, got %d", c.Classifier.K))
	}
	if !types.IsValidDistanceMetric(c.Classifier.Metric) {
		errs = append(errs, fmt.Errorf("classifier.metric must be one of %v, got %q", types.ValidDistanceMetrics, c.Classifier.Metric))
	}

	if c.Alert.FlaggedLabel == "" || c.Alert.NeutralLabel == "" {
		errs = append(errs, errors.New("alert labels must not be empty"))
	} else if c.Alert.FlaggedLabel == c.Alert.NeutralLabel {
		errs = append(errs, fmt.Errorf("alert.flagged_label and alert.neutral_label must differ, both are %q", c.Alert.FlaggedLabel))
	}
	if c.Alert.Threshold < 0 || c.Alert.Threshold > 1 {
		errs = append(errs, fmt.Errorf("alert.threshold must be in [0,1], got %v", c.Alert.Threshold))
	}
	if c.Alert.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("alert.poll_interval must be > 0, got %v", c.Alert.PollInterval))
	}
	if !types.IsValidRearmPolicy(c.Alert.Rearm) {
		errs = append(errs, fmt.Errorf("alert.rearm must be one of %v, got %q", types.ValidRearmPolicies, c.Alert.Rearm))
	}
	switch c.Alert.Action {
	case "log", "event":
	case "command":
		if len(c.Alert.Command) == 0 {
			errs = append(errs, errors.New("alert.command is required for the command action"))
		}
	default:
		errs = append(errs, fmt.Errorf("alert.action must be log, command or event, got %q", c.Alert.Action))
	}

	if c.Training.Samples < 1 {
		errs = append(errs, fmt.Errorf("training.samples must be >= 1, got %d", c.Training.Samples))
	}
	if c.Training.Interval < 0 {
		errs = append(errs, fmt.Errorf("training.interval must be >= 0, got %v", c.Training.Interval))
	}

	if c.Extractor.URL == "" {
		errs = append(errs, errors.New("extractor.url is required"))
	}
	if c.Extractor.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("extractor.cache_size must be >= 0, got %d", c.Extractor.CacheSize))
	}
	if c.Camera.SnapshotURL == "" {
		errs = append(errs, errors.New("camera.snapshot_url is required"))
	}

	switch c.Security.Mode {
	case "development":
	case "production":
		if c.Security.APIToken == "" {
			errs = append(errs, errors.New("security.api_token is required in production mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("security.mode must be development or production, got %q", c.Security.Mode))
	}
	if c.Security.RateLimit <= 0 || c.Security.RateBurst < 1 {
		errs = append(errs, errors.New("security.rate_limit and security.rate_burst must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SQLitePath returns the database file used by the sqlite engine.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.Storage.DataPath, "notouch.db")
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat is getEnvInt for floating point values.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("200ms", "2s").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
