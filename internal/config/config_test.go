package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hmrc/bintray-backup-restore/internal/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.APIBaseURL != "https://bintray.com/api/v1" {
		t.Errorf("Expected Bintray API base URL, got '%s'", cfg.APIBaseURL)
	}
	if cfg.DownloadBaseURL != "https://dl.bintray.com" {
		t.Errorf("Expected Bintray download base URL, got '%s'", cfg.DownloadBaseURL)
	}
	if diff := cmp.Diff([]string{"releases", "sbt-plugin-releases"}, cfg.Repositories); diff != "" {
		t.Errorf("Repositories mismatch (-want +got):\n%s", diff)
	}
	if len(cfg.ExcludePatterns) != 0 {
		t.Errorf("Expected no exclude patterns by default, got %v", cfg.ExcludePatterns)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", cfg.MaxRetries)
	}
	if !cfg.HistoryEnabled {
		t.Error("Expected history enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{
			name:     "invalid output format",
			mutate:   func(c *Config) { c.DefaultOutputFormat = types.OutputFormat("xml") },
			errorMsg: "invalid output format",
		},
		{
			name:     "relative api url",
			mutate:   func(c *Config) { c.APIBaseURL = "bintray.com/api/v1" },
			errorMsg: "invalid api base URL",
		},
		{
			name:     "empty local dir",
			mutate:   func(c *Config) { c.LocalDir = " " },
			errorMsg: "local directory must not be empty",
		},
		{
			name:     "repository with slash",
			mutate:   func(c *Config) { c.Repositories = []string{"releases/../etc"} },
			errorMsg: "invalid repository name",
		},
		{
			name:     "zero concurrency",
			mutate:   func(c *Config) { c.Concurrency = 0 },
			errorMsg: "concurrency must be between 1 and 64",
		},
		{
			name:     "max retries too high",
			mutate:   func(c *Config) { c.MaxRetries = 11 },
			errorMsg: "max retries must be between 0 and 10",
		},
		{
			name:     "retry base delay too low",
			mutate:   func(c *Config) { c.RetryBaseDelay = 50 },
			errorMsg: "retry base delay must be between 100ms and 60000ms",
		},
		{
			name:     "request timeout out of range",
			mutate:   func(c *Config) { c.RequestTimeout = 3700 },
			errorMsg: "request timeout must be between 1 and 3600 seconds",
		},
		{
			name:     "negative rate",
			mutate:   func(c *Config) { c.RequestsPerSecond = -1 },
			errorMsg: "requests per second must be non-negative",
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.LogLevel = "loud" },
			errorMsg: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.errorMsg)
			}
		})
	}
}

func TestConfigDurationGetters(t *testing.T) {
	cfg := &Config{RetryBaseDelay: 1000, RequestTimeout: 60}

	if d := cfg.GetRetryBaseDelay(); d != 1000*time.Millisecond {
		t.Errorf("Expected retry base delay 1000ms, got %v", d)
	}
	if d := cfg.GetRequestTimeout(); d != 60*time.Second {
		t.Errorf("Expected request timeout 60s, got %v", d)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BBR_CONFIG_DIR", dir)
	t.Setenv("BINTRAY_ORGANISATION", "")
	t.Setenv("BINTRAY_USERNAME", "")

	cfg := DefaultConfig()
	cfg.Organisation = "hmrc"
	cfg.Username = "builder"
	cfg.LocalDir = filepath.Join(dir, "backup")
	cfg.Repositories = []string{"sbt-plugin-releases"}
	cfg.ExcludePatterns = []string{"*.tmp"}
	cfg.Concurrency = 8

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, ConfigFileName))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected config file mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("loaded config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("BBR_CONFIG_DIR", t.TempDir())
	t.Setenv("BINTRAY_ORGANISATION", "")
	t.Setenv("BINTRAY_USERNAME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BBR_CONFIG_DIR", dir)
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for malformed config file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BINTRAY_ORGANISATION", "hmrc")
	t.Setenv("BINTRAY_USERNAME", "builder")
	t.Setenv("BBR_REPOSITORIES", "releases, sbt-plugin-releases,")
	t.Setenv("BBR_EXCLUDE", "*.tmp")
	t.Setenv("BBR_CONCURRENCY", "2")
	t.Setenv("BBR_MAX_RETRIES", "7")
	t.Setenv("BBR_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("BBR_OUTPUT_FORMAT", "json")
	t.Setenv("BBR_LOG_LEVEL", "debug")
	t.Setenv("BBR_HISTORY", "off")

	cfg := DefaultConfig()
	cfg.loadFromEnv()

	if cfg.Organisation != "hmrc" || cfg.Username != "builder" {
		t.Errorf("identity not read from env: %q %q", cfg.Organisation, cfg.Username)
	}
	if diff := cmp.Diff([]string{"releases", "sbt-plugin-releases"}, cfg.Repositories); diff != "" {
		t.Errorf("Repositories mismatch (-want +got):\n%s", diff)
	}
	if cfg.Concurrency != 2 || cfg.MaxRetries != 7 {
		t.Errorf("numeric overrides not applied: %+v", cfg)
	}
	if cfg.RequestsPerSecond != 2.5 {
		t.Errorf("Expected requests per second 2.5, got %v", cfg.RequestsPerSecond)
	}
	if cfg.DefaultOutputFormat != types.OutputFormatJSON {
		t.Errorf("Expected output format 'json', got '%s'", cfg.DefaultOutputFormat)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.HistoryEnabled {
		t.Error("Expected history disabled by BBR_HISTORY=off")
	}
}

func TestRepositoryRoots(t *testing.T) {
	cfg := &Config{LocalDir: "/backups"}
	got := cfg.RepositoryRoots([]string{"releases", "sbt-plugin-releases"})
	want := []string{filepath.Join("/backups", "releases"), filepath.Join("/backups", "sbt-plugin-releases")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RepositoryRoots() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"off", false},
		{"", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseBool(tt.input); got != tt.want {
				t.Errorf("parseBool(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
