package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// HistoryFileName is the run history database inside the config directory
	HistoryFileName = "history.db"
	// AppDirName is the directory under ~/.config where config is stored
	AppDirName = "bintray-backup-restore"
	// EnvPrefix is the prefix for tool-specific environment variables
	EnvPrefix = "BBR_"
	// BintrayEnvPrefix is the prefix of the credential/identity variables
	BintrayEnvPrefix = "BINTRAY_"
)

// Config holds application configuration. The API token is never stored here.
type Config struct {
	// Organisation is the Bintray subject owning the repositories
	Organisation string `json:"organisation"`

	// Username is the Bintray user the API token belongs to
	Username string `json:"username"`

	// APIBaseURL is the REST API root
	APIBaseURL string `json:"apiBaseUrl"`

	// DownloadBaseURL is the content delivery root used for backup downloads
	DownloadBaseURL string `json:"downloadBaseUrl"`

	// LocalDir is the base directory holding one subdirectory per repository
	LocalDir string `json:"localDir"`

	// Repositories is the list backed up and restored when none is given
	Repositories []string `json:"repositories"`

	// ExcludePatterns are skipped by the local catalog reader
	ExcludePatterns []string `json:"excludePatterns"`

	// Concurrency bounds parallel catalog reads and transfers
	Concurrency int `json:"concurrency"`

	// MaxRetries is the maximum number of retries for transient failures
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// RequestTimeout is the per-request timeout in seconds
	RequestTimeout int `json:"requestTimeout"`

	// RequestsPerSecond limits outbound requests, 0 means unlimited
	RequestsPerSecond float64 `json:"requestsPerSecond"`

	// DefaultOutputFormat is the default output format (json, table)
	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`

	// ColorOutput enables colored console logs
	ColorOutput bool `json:"colorOutput"`

	// HistoryEnabled records every run in the history database
	HistoryEnabled bool `json:"historyEnabled"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:          utils.APIBaseURL,
		DownloadBaseURL:     utils.DownloadBaseURL,
		LocalDir:            ".",
		Repositories:        append([]string(nil), utils.DefaultRepositories...),
		ExcludePatterns:     []string{},
		Concurrency:         utils.DefaultConcurrency,
		MaxRetries:          utils.DefaultMaxRetries,
		RetryBaseDelay:      utils.DefaultRetryDelayMs,
		RequestTimeout:      utils.DefaultRequestTimeoutS,
		DefaultOutputFormat: types.OutputFormatTable,
		LogLevel:            "normal",
		ColorOutput:         true,
		HistoryEnabled:      true,
	}
}

// Load loads configuration with precedence: env vars > config file > defaults.
// CLI flags are applied on top by the caller.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom is Load with an explicit config file path
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(configPath); err != nil {
		// Config file not existing is not an error
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv(BintrayEnvPrefix + "ORGANISATION"); v != "" {
		c.Organisation = v
	}
	if v := os.Getenv(BintrayEnvPrefix + "USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv(EnvPrefix + "API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "DOWNLOAD_BASE_URL"); v != "" {
		c.DownloadBaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "LOCAL_DIR"); v != "" {
		c.LocalDir = v
	}
	if v := os.Getenv(EnvPrefix + "REPOSITORIES"); v != "" {
		c.Repositories = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "EXCLUDE"); v != "" {
		c.ExcludePatterns = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_RETRIES"); v != "" {
		if retries, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = retries
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRY_BASE_DELAY"); v != "" {
		if delay, err := strconv.Atoi(v); err == nil {
			c.RetryBaseDelay = delay
		}
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		if timeout, err := strconv.Atoi(v); err == nil {
			c.RequestTimeout = timeout
		}
	}
	if v := os.Getenv(EnvPrefix + "REQUESTS_PER_SECOND"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			c.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.DefaultOutputFormat = types.OutputFormat(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "HISTORY"); v != "" {
		c.HistoryEnabled = parseBool(v)
	}
}

// Save writes the configuration to the default config path
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes the configuration to configPath with restricted permissions
func (c *Config) SaveTo(configPath string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DefaultOutputFormat != types.OutputFormatJSON &&
		c.DefaultOutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.DefaultOutputFormat)
	}

	for name, raw := range map[string]string{"api base URL": c.APIBaseURL, "download base URL": c.DownloadBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	if strings.TrimSpace(c.LocalDir) == "" {
		return fmt.Errorf("local directory must not be empty")
	}

	for _, repo := range c.Repositories {
		if repo == "" || strings.ContainsAny(repo, `/\`) || repo == "." || repo == ".." {
			return fmt.Errorf("invalid repository name: %q", repo)
		}
	}

	if c.Concurrency < 1 || c.Concurrency > 64 {
		return fmt.Errorf("concurrency must be between 1 and 64, got: %d", c.Concurrency)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must be non-negative, got: %v", c.RequestsPerSecond)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// RepositoryRoots returns {LocalDir}/{repo} for each repository
func (c *Config) RepositoryRoots(repositories []string) []string {
	roots := make([]string, 0, len(repositories))
	for _, repo := range repositories {
		roots = append(roots, filepath.Join(c.LocalDir, repo))
	}
	return roots
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetHistoryPath returns the path to the run history database
func GetHistoryPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, HistoryFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", AppDirName), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitList parses a comma separated list, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
