package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures the settings required to persist one OTDR session.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SourceConfig selects where the current analysis is read from.
type SourceConfig struct {
	Kind         string        `yaml:"kind" validate:"oneof=file frontpanel"`
	Path         string        `yaml:"path" validate:"required_if=Kind file"`
	BaseURL      string        `yaml:"baseURL" validate:"required_if=Kind frontpanel"`
	AnalysisPath string        `yaml:"analysisPath"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
}

// StorageConfig selects the results database.
type StorageConfig struct {
	Driver  string `yaml:"driver" validate:"oneof=sqlite postgres"`
	DSN     string `yaml:"dsn" validate:"required_if=Driver postgres"`
	Migrate bool   `yaml:"migrate"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls pushing run metrics to a Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayURL" validate:"omitempty,url"`
	Job            string `yaml:"job"`
}

var validate = validator.New()

// Load initialises Config from a YAML file, a .env file in the working
// directory and environment overrides, in that order.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("OTDR_PERSIST_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Source: SourceConfig{
			Kind:         "file",
			Path:         "analysis.yaml",
			AnalysisPath: "/api/v1/analysis/current",
			Timeout:      5 * time.Second,
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			Migrate: true,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Metrics: MetricsConfig{Job: "otdr_persist"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OTDR_PERSIST_SOURCE_KIND"); v != "" {
		cfg.Source.Kind = v
	}
	if v := os.Getenv("OTDR_PERSIST_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("OTDR_PERSIST_FRONTPANEL_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("OTDR_PERSIST_FRONTPANEL_ANALYSIS_PATH"); v != "" {
		cfg.Source.AnalysisPath = v
	}
	if v := os.Getenv("OTDR_PERSIST_SOURCE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.Timeout = d
		}
	}
	if v := os.Getenv("OTDR_PERSIST_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("OTDR_PERSIST_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("OTDR_PERSIST_STORAGE_MIGRATE"); v != "" {
		cfg.Storage.Migrate = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("OTDR_PERSIST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OTDR_PERSIST_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("OTDR_PERSIST_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
	if v := os.Getenv("OTDR_PERSIST_METRICS_JOB"); v != "" {
		cfg.Metrics.Job = v
	}
}
