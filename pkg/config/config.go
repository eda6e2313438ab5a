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

// Config holds all configuration options for the profile sync engine
type Config struct {
	// Instagram session settings
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Profile store settings
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Retention sweep settings
	Retention RetentionConfig `yaml:"retention" json:"retention"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry configuration for remote calls
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InstagramConfig holds session-specific configuration
type InstagramConfig struct {
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	CookieFile     string        `yaml:"cookie_file" json:"cookie_file"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// DatabaseConfig holds profile store configuration. An empty path disables
// the relational store; privacy tracking then falls back to flat files.
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// DownloadConfig holds media download configuration
type DownloadConfig struct {
	BaseDirectory     string        `yaml:"base_directory" json:"base_directory"`
	TrackingDirectory string        `yaml:"tracking_directory" json:"tracking_directory"`
	StampsFile        string        `yaml:"stamps_file" json:"stamps_file"`
	Highlights        bool          `yaml:"highlights" json:"highlights"`
	DownloadTimeout   time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// RetentionConfig holds file retention sweep configuration
type RetentionConfig struct {
	Workers            int   `yaml:"workers" json:"workers"`
	BatchSize          int   `yaml:"batch_size" json:"batch_size"`
	LargeFileThreshold int64 `yaml:"large_file_threshold" json:"large_file_threshold"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RetryConfig holds retry behavior for remote fetches
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			RequestTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./resources/instatrack.db",
		},
		Download: DownloadConfig{
			BaseDirectory:     "./resources/downloads",
			TrackingDirectory: "./resources/target",
			StampsFile:        "./resources/latest_stamps.json",
			Highlights:        false,
			DownloadTimeout:   60 * time.Second,
		},
		Retention: RetentionConfig{
			Workers:            16,
			BatchSize:          500,
			LargeFileThreshold: 100000,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 5 * time.Second,
			MaxDelay:     2 * time.Minute,
			Multiplier:   2.0,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if userAgent := os.Getenv("INSTATRACK_USER_AGENT"); userAgent != "" {
		c.Instagram.UserAgent = userAgent
	}
	if cookieFile := os.Getenv("INSTATRACK_COOKIE_FILE"); cookieFile != "" {
		c.Instagram.CookieFile = cookieFile
	}
	if dbPath := os.Getenv("INSTATRACK_DATABASE_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}
	if downloadDir := os.Getenv("INSTATRACK_DOWNLOAD_DIR"); downloadDir != "" {
		c.Download.BaseDirectory = downloadDir
	}
	if trackingDir := os.Getenv("INSTATRACK_TRACKING_DIR"); trackingDir != "" {
		c.Download.TrackingDirectory = trackingDir
	}
	if workers := os.Getenv("INSTATRACK_RETENTION_WORKERS"); workers != "" {
		var val int
		fmt.Sscanf(workers, "%d", &val)
		if val > 0 {
			c.Retention.Workers = val
		}
	}
	if rpm := os.Getenv("INSTATRACK_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if highlights := os.Getenv("INSTATRACK_HIGHLIGHTS"); highlights != "" {
		c.Download.Highlights = strings.ToLower(highlights) == "true"
	}
	if logLevel := os.Getenv("INSTATRACK_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
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

// findConfigFile looks for a config file in default locations
func (c *Config) findConfigFile() string {
	candidates := []string{
		"instatrack.yaml",
		"instatrack.yml",
		".instatrack.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".instatrack.yaml"),
			filepath.Join(home, ".config", "instatrack", "config.yaml"),
		)
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// applyFlags overlays command line flag values onto the configuration
func (c *Config) applyFlags(flags map[string]interface{}) {
	for key, value := range flags {
		switch key {
		case "database":
			if v, ok := value.(string); ok {
				c.Database.Path = v
			}
		case "download-dir":
			if v, ok := value.(string); ok {
				c.Download.BaseDirectory = v
			}
		case "cookie-file":
			if v, ok := value.(string); ok {
				c.Instagram.CookieFile = v
			}
		case "highlights":
			if v, ok := value.(bool); ok {
				c.Download.Highlights = v
			}
		case "workers":
			if v, ok := value.(int); ok && v > 0 {
				c.Retention.Workers = v
			}
		case "requests-per-minute":
			if v, ok := value.(int); ok && v > 0 {
				c.RateLimit.RequestsPerMinute = v
			}
		case "log-level":
			if v, ok := value.(string); ok {
				c.Logging.Level = v
			}
		}
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Download.BaseDirectory == "" {
		return errors.New("download base directory must not be empty")
	}
	if c.Retention.Workers <= 0 {
		return errors.New("retention workers must be positive")
	}
	if c.Retention.BatchSize <= 0 {
		return errors.New("retention batch size must be positive")
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return errors.New("requests per minute must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry max attempts must be at least 1")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("unknown log level: %s", c.Logging.Level)
	}
	return nil
}

// Load builds the effective configuration: defaults, then .env, then the YAML
// file, then environment variables, then command line flags.
func Load(path string, flags map[string]interface{}) (*Config, error) {
	// A missing .env file is fine; it is a convenience only.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	cfg.applyFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
