package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.Kind != "file" || cfg.Storage.Driver != "sqlite" || !cfg.Storage.Migrate {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Source.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Source.Timeout)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
source:
  kind: frontpanel
  baseURL: http://panel.local:7070
  timeout: 2s
storage:
  driver: postgres
  dsn: postgres://otdr@db/otdr
logging:
  level: debug
`)
	t.Setenv("OTDR_PERSIST_STORAGE_MIGRATE", "false")
	t.Setenv("OTDR_PERSIST_LOG_FORMAT", "json")
	t.Setenv("OTDR_PERSIST_PUSHGATEWAY_URL", "http://pushgateway:9091")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.BaseURL != "http://panel.local:7070" || cfg.Source.Timeout != 2*time.Second {
		t.Fatalf("unexpected source: %+v", cfg.Source)
	}
	if cfg.Source.AnalysisPath != "/api/v1/analysis/current" {
		t.Fatalf("default analysis path lost: %q", cfg.Source.AnalysisPath)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.Migrate {
		t.Fatalf("unexpected storage: %+v", cfg.Storage)
	}
	if !cfg.Logging.JSON || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
	if cfg.Metrics.PushgatewayURL != "http://pushgateway:9091" {
		t.Fatalf("unexpected metrics: %+v", cfg.Metrics)
	}
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeConfig(t, "source:\n  path: /var/lib/otdr/current.yaml\n")
	t.Setenv("OTDR_PERSIST_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.Path != "/var/lib/otdr/current.yaml" {
		t.Fatalf("unexpected path: %q", cfg.Source.Path)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OTDR_PERSIST_METRICS_JOB=bench-3\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	// godotenv does not overwrite existing variables; make sure the test owns it.
	t.Setenv("OTDR_PERSIST_METRICS_JOB", "")
	os.Unsetenv("OTDR_PERSIST_METRICS_JOB")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Metrics.Job != "bench-3" {
		t.Fatalf("expected job from .env, got %q", cfg.Metrics.Job)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"unknown driver":         "storage:\n  driver: oracle\n",
		"postgres without dsn":   "storage:\n  driver: postgres\n",
		"frontpanel without url": "source:\n  kind: frontpanel\n",
		"bad level":              "logging:\n  level: loud\n",
		"bad pushgateway":        "metrics:\n  pushgatewayURL: not a url\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			if err == nil || !strings.Contains(err.Error(), "invalid config") {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
