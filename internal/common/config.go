package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Origin      OriginConfig    `toml:"origin"`
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Scrape      ScrapeConfig    `toml:"scrape"`
	Rescrape    RescrapeConfig  `toml:"rescrape"`
	Cache       CacheConfig     `toml:"cache"`
	Heartbeat   HeartbeatConfig `toml:"heartbeat"`
}

// OriginConfig describes the forum being scraped and how to talk to it.
// All outbound traffic goes through the fetch gateway, which enforces
// RequestInterval between request starts.
type OriginConfig struct {
	BaseURL         string `toml:"base_url" validate:"required,url"`
	LoginPath       string `toml:"login_path"`       // Relative path of the login form action
	RecentPath      string `toml:"recent_path"`      // Relative path of the recent-posts listing
	MeritPath       string `toml:"merit_path"`       // Relative path of the recent-merit listing
	ModLogPath      string `toml:"modlog_path"`      // Relative path of the moderation log
	Username        string `toml:"username"`         // Forum account used for authenticated scraping
	Password        string `toml:"password"`         // Forum account password
	UserAgent       string `toml:"user_agent"`
	Encoding        string `toml:"encoding"`         // Legacy charset served by the origin (e.g. "windows-1252")
	RequestInterval string `toml:"request_interval"` // Minimum spacing between request starts, e.g. "1500ms"
	RequestTimeout  string `toml:"request_timeout"`  // Per-request HTTP timeout
	AnonymousText   string `toml:"anonymous_text"`   // Marker present on pages served to logged-out sessions
	MaxBodySize     int    `toml:"max_body_size"`    // Maximum response body size in bytes
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency" validate:"min=1"`
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive" validate:"min=1"`
	QueueName         string `toml:"queue_name"` // Queue name prefix in Badger
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	InMemory       bool   `toml:"in_memory"`        // Run without a data directory (tests)
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// ScrapeConfig holds the cron schedules for the recurring scrape producers.
type ScrapeConfig struct {
	RecentSchedule string `toml:"recent_schedule"` // Cron spec for the recent-posts cycle
	MeritSchedule  string `toml:"merit_schedule"`  // Cron spec for the recent-merit cycle
	ModLogSchedule string `toml:"modlog_schedule"` // Cron spec for the moderation-log cycle
}

// RescrapeConfig controls the delayed re-verification of freshly scraped posts.
type RescrapeConfig struct {
	Delay         string `toml:"delay"`          // Lower bound before a new post is re-checked
	SweepInterval string `toml:"sweep_interval"` // How often due schedule entries are dispatched
	EntryTTL      string `toml:"entry_ttl"`      // Storage TTL for schedule entries, must exceed delay
}

// CacheConfig controls the short-TTL dedup cache in front of the store.
type CacheConfig struct {
	TTL string `toml:"ttl"` // e.g., "10m"
}

// HeartbeatConfig controls the liveness ping emitted after successful cycles.
type HeartbeatConfig struct {
	URL     string `toml:"url"`     // Empty disables the ping
	Timeout string `toml:"timeout"` // e.g., "10s"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in vigil.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Origin: OriginConfig{
			LoginPath:       "/index.php?action=login2",
			RecentPath:      "/index.php?action=recent",
			MeritPath:       "/index.php?action=merit;stats=recent",
			ModLogPath:      "/modlog.php",
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Encoding:        "windows-1252",
			RequestInterval: "1500ms",
			RequestTimeout:  "30s",
			AnonymousText:   "Login with username, password and session length",
			MaxBodySize:     10 * 1024 * 1024, // 10MB
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4,
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			QueueName:         "vigil_jobs",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Scrape: ScrapeConfig{
			RecentSchedule: "@every 1m",
			MeritSchedule:  "@every 5m",
			ModLogSchedule: "@every 10m",
		},
		Rescrape: RescrapeConfig{
			Delay:         "10m",
			SweepInterval: "1m",
			EntryTTL:      "2h",
		},
		Cache: CacheConfig{
			TTL: "10m",
		},
		Heartbeat: HeartbeatConfig{
			Timeout: "10s",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files.
// Later files override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks struct tags and duration fields.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"origin.request_interval":  c.Origin.RequestInterval,
		"origin.request_timeout":   c.Origin.RequestTimeout,
		"queue.poll_interval":      c.Queue.PollInterval,
		"queue.visibility_timeout": c.Queue.VisibilityTimeout,
		"rescrape.delay":           c.Rescrape.Delay,
		"rescrape.sweep_interval":  c.Rescrape.SweepInterval,
		"rescrape.entry_ttl":       c.Rescrape.EntryTTL,
		"cache.ttl":                c.Cache.TTL,
		"heartbeat.timeout":        c.Heartbeat.Timeout,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	delay := ParseDurationOr(c.Rescrape.Delay, 10*time.Minute)
	ttl := ParseDurationOr(c.Rescrape.EntryTTL, 2*time.Hour)
	if ttl <= delay {
		return fmt.Errorf("rescrape.entry_ttl (%s) must exceed rescrape.delay (%s)", ttl, delay)
	}

	return nil
}

// ParseDurationOr parses a duration string, falling back to a default on
// empty or malformed input. Config validation has already rejected malformed
// values for file-sourced configs, so the fallback mostly serves tests.
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIGIL_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Origin configuration
	if baseURL := os.Getenv("VIGIL_ORIGIN_BASE_URL"); baseURL != "" {
		config.Origin.BaseURL = baseURL
	}
	if username := os.Getenv("VIGIL_ORIGIN_USERNAME"); username != "" {
		config.Origin.Username = username
	}
	if password := os.Getenv("VIGIL_ORIGIN_PASSWORD"); password != "" {
		config.Origin.Password = password
	}
	if userAgent := os.Getenv("VIGIL_ORIGIN_USER_AGENT"); userAgent != "" {
		config.Origin.UserAgent = userAgent
	}
	if encoding := os.Getenv("VIGIL_ORIGIN_ENCODING"); encoding != "" {
		config.Origin.Encoding = encoding
	}
	if interval := os.Getenv("VIGIL_ORIGIN_REQUEST_INTERVAL"); interval != "" {
		if _, err := time.ParseDuration(interval); err == nil {
			config.Origin.RequestInterval = interval
		}
	}
	if timeout := os.Getenv("VIGIL_ORIGIN_REQUEST_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Origin.RequestTimeout = timeout
		}
	}

	// Queue configuration
	if pollInterval := os.Getenv("VIGIL_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("VIGIL_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("VIGIL_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("VIGIL_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}
	if queueName := os.Getenv("VIGIL_QUEUE_NAME"); queueName != "" {
		config.Queue.QueueName = queueName
	}

	// Storage configuration
	if badgerPath := os.Getenv("VIGIL_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("VIGIL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("VIGIL_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("VIGIL_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Schedules
	if schedule := os.Getenv("VIGIL_SCRAPE_RECENT_SCHEDULE"); schedule != "" {
		config.Scrape.RecentSchedule = schedule
	}
	if schedule := os.Getenv("VIGIL_SCRAPE_MERIT_SCHEDULE"); schedule != "" {
		config.Scrape.MeritSchedule = schedule
	}
	if schedule := os.Getenv("VIGIL_SCRAPE_MODLOG_SCHEDULE"); schedule != "" {
		config.Scrape.ModLogSchedule = schedule
	}

	// Rescrape configuration
	if delay := os.Getenv("VIGIL_RESCRAPE_DELAY"); delay != "" {
		if _, err := time.ParseDuration(delay); err == nil {
			config.Rescrape.Delay = delay
		}
	}
	if sweep := os.Getenv("VIGIL_RESCRAPE_SWEEP_INTERVAL"); sweep != "" {
		if _, err := time.ParseDuration(sweep); err == nil {
			config.Rescrape.SweepInterval = sweep
		}
	}

	// Heartbeat configuration
	if url := os.Getenv("VIGIL_HEARTBEAT_URL"); url != "" {
		config.Heartbeat.URL = url
	}
}
