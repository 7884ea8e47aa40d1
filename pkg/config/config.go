package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the engine and CLI.
type Config struct {
	// Login flow settings
	Login LoginConfig `yaml:"login" json:"login"`

	// Session persistence settings
	Session SessionConfig `yaml:"session" json:"session"`

	// Article fetching settings
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Request gate / throttling settings
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Browser automation settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Feed output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// LoginConfig holds scan-login settings.
type LoginConfig struct {
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	QRCodeFile   string        `yaml:"qrcode_file" json:"qrcode_file"`
}

// SessionConfig selects the persistence backend for login credentials.
type SessionConfig struct {
	// Backend is one of "file", "keyring", "encrypted".
	Backend string `yaml:"backend" json:"backend"`
	File    string `yaml:"file" json:"file"`
}

// FetchConfig holds article retrieval settings.
type FetchConfig struct {
	ArticleCount int  `yaml:"article_count" json:"article_count"`
	WithContent  bool `yaml:"with_content" json:"with_content"`
	SearchLimit  int  `yaml:"search_limit" json:"search_limit"`
	// PageSize is the platform's list page size. The platform does not
	// document it; keep it configurable instead of baking in a magic number.
	PageSize int `yaml:"page_size" json:"page_size"`
}

// RateLimitConfig holds request gate settings.
type RateLimitConfig struct {
	MinInterval       time.Duration `yaml:"min_interval" json:"min_interval"`
	BackoffBase       time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax        time.Duration `yaml:"backoff_max" json:"backoff_max"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	TransportRetries  int           `yaml:"transport_retries" json:"transport_retries"`
}

// BrowserConfig holds browser automation settings.
type BrowserConfig struct {
	Headless bool          `yaml:"headless" json:"headless"`
	ExecPath string        `yaml:"exec_path" json:"exec_path"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// OutputConfig holds feed output settings.
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	FeedsFile string `yaml:"feeds_file" json:"feeds_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Login: LoginConfig{
			Timeout:      180 * time.Second,
			PollInterval: 2 * time.Second,
			QRCodeFile:   "static/wx_qrcode.png",
		},
		Session: SessionConfig{
			Backend: "file",
			File:    "wx_session.json",
		},
		Fetch: FetchConfig{
			ArticleCount: 10,
			WithContent:  false,
			SearchLimit:  5,
			PageSize:     5,
		},
		RateLimit: RateLimitConfig{
			MinInterval:       1500 * time.Millisecond,
			BackoffBase:       30 * time.Second,
			BackoffMax:        5 * time.Minute,
			BackoffMultiplier: 2.0,
			TransportRetries:  2,
		},
		Browser: BrowserConfig{
			Headless: true,
			Timeout:  30 * time.Second,
		},
		Output: OutputConfig{
			Directory: "output",
			FeedsFile: "feeds.json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration overrides from environment variables.
func (c *Config) LoadFromEnv() error {
	if file := os.Getenv("WXRSS_SESSION_FILE"); file != "" {
		c.Session.File = file
	}
	if backend := os.Getenv("WXRSS_SESSION_BACKEND"); backend != "" {
		c.Session.Backend = backend
	}
	if timeout := os.Getenv("WXRSS_LOGIN_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			c.Login.Timeout = d
		}
	}
	if count := os.Getenv("WXRSS_ARTICLE_COUNT"); count != "" {
		var val int
		fmt.Sscanf(count, "%d", &val)
		if val > 0 {
			c.Fetch.ArticleCount = val
		}
	}
	if interval := os.Getenv("WXRSS_MIN_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil && d > 0 {
			c.RateLimit.MinInterval = d
		}
	}
	if headless := os.Getenv("WXRSS_BROWSER_HEADLESS"); headless != "" {
		c.Browser.Headless = strings.ToLower(headless) != "false"
	}
	if execPath := os.Getenv("WXRSS_BROWSER_EXEC"); execPath != "" {
		c.Browser.ExecPath = execPath
	}
	if outputDir := os.Getenv("WXRSS_OUTPUT_DIR"); outputDir != "" {
		c.Output.Directory = outputDir
	}
	if logLevel := os.Getenv("WXRSS_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // no config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for a config file in standard locations.
func (c *Config) findConfigFile() string {
	locations := []string{
		".wxrss.yaml",
		".wxrss.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "wxrss", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "wxrss", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".wxrss.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Session.Backend) {
	case "file", "keyring", "encrypted":
	default:
		errs = append(errs, errors.New("session backend must be one of file, keyring, encrypted"))
	}
	if c.Session.File == "" {
		errs = append(errs, errors.New("session file is required"))
	}

	if c.Login.Timeout <= 0 {
		errs = append(errs, errors.New("login timeout must be positive"))
	}
	if c.Login.PollInterval <= 0 {
		errs = append(errs, errors.New("login poll interval must be positive"))
	}

	if c.Fetch.ArticleCount <= 0 {
		errs = append(errs, errors.New("article count must be positive"))
	}
	if c.Fetch.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Fetch.SearchLimit <= 0 {
		errs = append(errs, errors.New("search limit must be positive"))
	}

	if c.RateLimit.MinInterval < 0 {
		errs = append(errs, errors.New("min interval cannot be negative"))
	}
	if c.RateLimit.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("backoff multiplier must be at least 1"))
	}
	if c.RateLimit.TransportRetries < 0 {
		errs = append(errs, errors.New("transport retries cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: environment variables > .env file > config file > defaults.
func Load(configPath string) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".wxrss.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
