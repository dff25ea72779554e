// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env var expansion, durations and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
backend:
  url: "https://council.example.com"
  token: "abc"
  request_timeout: "45s"

database:
  path: "./ledger.db"

logging:
  level: "debug"
  format: "json"

summaries:
  refresh_timeout: "3s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.URL != "https://council.example.com" {
		t.Errorf("Backend.URL = %q, want %q", cfg.Backend.URL, "https://council.example.com")
	}
	if cfg.Backend.Token != "abc" {
		t.Errorf("Backend.Token = %q, want %q", cfg.Backend.Token, "abc")
	}
	if cfg.Backend.RequestTimeout != 45*time.Second {
		t.Errorf("Backend.RequestTimeout = %v, want %v", cfg.Backend.RequestTimeout, 45*time.Second)
	}
	if cfg.Database.Path != "./ledger.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./ledger.db")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if cfg.Summaries.RefreshTimeout != 3*time.Second {
		t.Errorf("Summaries.RefreshTimeout = %v, want %v", cfg.Summaries.RefreshTimeout, 3*time.Second)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[backend]
url = "http://127.0.0.1:9000"
request_timeout = "5s"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.URL != "http://127.0.0.1:9000" {
		t.Errorf("Backend.URL = %q, want %q", cfg.Backend.URL, "http://127.0.0.1:9000")
	}
	if cfg.Backend.RequestTimeout != 5*time.Second {
		t.Errorf("Backend.RequestTimeout = %v, want %v", cfg.Backend.RequestTimeout, 5*time.Second)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	// Untouched sections keep their defaults
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want default %q", cfg.Logging.Format, "text")
	}
	if cfg.Summaries.RefreshTimeout != defaultRefreshTimeout {
		t.Errorf("Summaries.RefreshTimeout = %v, want default %v", cfg.Summaries.RefreshTimeout, defaultRefreshTimeout)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("COUNCIL_TEST_TOKEN", "from-env")
	t.Setenv("COUNCIL_TEST_HOST", "council.internal")

	path := writeConfig(t, "config.yml", `
backend:
  url: "https://${COUNCIL_TEST_HOST}"
  token: "${COUNCIL_TEST_TOKEN}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.URL != "https://council.internal" {
		t.Errorf("Backend.URL = %q, want %q", cfg.Backend.URL, "https://council.internal")
	}
	if cfg.Backend.Token != "from-env" {
		t.Errorf("Backend.Token = %q, want %q", cfg.Backend.Token, "from-env")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Backend.URL != defaultBackendURL {
		t.Errorf("Backend.URL = %q, want %q", cfg.Backend.URL, defaultBackendURL)
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty (ledger disabled)", cfg.Database.Path)
	}

	// A file that exists but is broken is still an error
	bad := writeConfig(t, "bad.yaml", "backend: [unclosed")
	if _, err := LoadOrDefault(bad); err == nil {
		t.Fatal("LoadOrDefault() expected parse error")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
backend:
  request_timeout: "soon"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "request_timeout") {
		t.Errorf("error = %v, want mention of request_timeout", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing url", mutate: func(c *Config) { c.Backend.URL = "" }, wantErr: "backend.url is required"},
		{name: "bad scheme", mutate: func(c *Config) { c.Backend.URL = "ftp://x" }, wantErr: "http or https"},
		{name: "zero timeout", mutate: func(c *Config) { c.Backend.RequestTimeout = 0 }, wantErr: "request_timeout"},
		{name: "zero refresh timeout", mutate: func(c *Config) { c.Summaries.RefreshTimeout = 0 }, wantErr: "refresh_timeout"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("COUNCIL_A", "alpha")

	got := expandEnvVars("x=${COUNCIL_A} y=${COUNCIL_UNSET_VAR_XYZ} z=$COUNCIL_A")
	want := "x=alpha y= z=$COUNCIL_A"
	if got != want {
		t.Errorf("expandEnvVars() = %q, want %q", got, want)
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/council.toml")
	if got := Path(); got != "/etc/council.toml" {
		t.Errorf("Path() = %q, want env override", got)
	}

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := Path(); got != filepath.Join("/xdg", "council", "config.yaml") {
		t.Errorf("Path() = %q, want XDG path", got)
	}
}
