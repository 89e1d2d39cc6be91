// Package config handles loading and validating the rink.yaml
// configuration. The engine runs with zero config (sensible defaults for
// every provider); rink.yaml overrides base URLs, pacing, and the
// background-worker knobs. A handful of operational environment variables
// override the file (DATABASE_URL, VALIDATION_*, S3_*, SCHEDULER_ENABLED).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level rink.yaml configuration.
type Config struct {
	Database    DatabaseConfig   `yaml:"database"`
	NHLAPI      APISourceConfig  `yaml:"nhl_api"`
	HTMLReports HTMLSourceConfig `yaml:"html_reports"`
	Scrape      ScrapeConfig     `yaml:"scrape"`
	Archive     ArchiveConfig    `yaml:"archive"`
	Validation  ValidationConfig `yaml:"validation"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
	Retention   RetentionConfig  `yaml:"retention"`
}

// DatabaseConfig locates Postgres. URL is normally supplied via
// DATABASE_URL rather than the file.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// APISourceConfig configures the JSON API family of sources.
type APISourceConfig struct {
	BaseURL           string  `yaml:"base_url"`
	StatsBaseURL      string  `yaml:"stats_base_url"` // shift charts live on a second host
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries"`
	TimeoutSeconds    float64 `yaml:"timeout_seconds"`
	UserAgent         string  `yaml:"user_agent"`
}

// HTMLSourceConfig configures the HTML game-report source.
type HTMLSourceConfig struct {
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries"`
	TimeoutSeconds    float64 `yaml:"timeout_seconds"`
	UserAgent         string  `yaml:"user_agent"`
	KeepRawPayloads   bool    `yaml:"keep_raw_payloads"` // archive raw HTML after parse
}

// ScrapeConfig configures the mixed-scrape analytics site sources.
type ScrapeConfig struct {
	BaseURL           string   `yaml:"base_url"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	MaxRetries        int      `yaml:"max_retries"`
	TimeoutSeconds    float64  `yaml:"timeout_seconds"`
	UserAgent         string   `yaml:"user_agent"`
	TeamSlugs         []string `yaml:"team_slugs"` // teams to scrape lines/injuries for
}

// ArchiveConfig configures the optional S3-compatible raw-payload
// archive. Absent endpoint disables archiving.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ValidationConfig tunes the auto-validation worker and the
// reconciliation engine.
type ValidationConfig struct {
	AutoRun            bool    `yaml:"auto_run"`
	DelaySeconds       float64 `yaml:"delay_seconds"`
	NameMatchThreshold float64 `yaml:"name_match_threshold"`
}

// SchedulerConfig drives the incremental-update scheduler. Cron is a
// standard five-field expression; Sources are started in order each
// firing, skipping any with a batch already running.
type SchedulerConfig struct {
	Enabled bool     `yaml:"enabled"`
	Cron    string   `yaml:"cron"`
	Sources []string `yaml:"sources"`
	Season  int      `yaml:"season"` // 0 means the current season by date
}

// RetentionConfig bounds how long terminal batches and validation runs
// are kept.
type RetentionConfig struct {
	BatchMaxAgeDays         int `yaml:"batch_max_age_days"`
	ValidationRunMaxAgeDays int `yaml:"validation_run_max_age_days"`
	IntervalMinutes         int `yaml:"interval_minutes"`
}

// DefaultConfig returns the production defaults: public provider URLs,
// one request per second everywhere, auto-validation on.
func DefaultConfig() *Config {
	return &Config{
		NHLAPI: APISourceConfig{
			BaseURL:           "https://api-web.nhle.com",
			StatsBaseURL:      "https://api.nhle.com/stats/rest",
			RequestsPerSecond: 1,
			MaxRetries:        3,
			TimeoutSeconds:    30,
			UserAgent:         "rink/1.0",
		},
		HTMLReports: HTMLSourceConfig{
			BaseURL:           "https://www.nhl.com/scores/htmlreports",
			RequestsPerSecond: 0.5,
			MaxRetries:        3,
			TimeoutSeconds:    30,
			UserAgent:         "rink/1.0",
		},
		Scrape: ScrapeConfig{
			BaseURL:           "https://www.dailyfaceoff.com",
			RequestsPerSecond: 0.5,
			MaxRetries:        2,
			TimeoutSeconds:    30,
			UserAgent:         "rink/1.0",
		},
		Validation: ValidationConfig{
			AutoRun:            true,
			DelaySeconds:       2.0,
			NameMatchThreshold: 0.85,
		},
		Scheduler: SchedulerConfig{
			Enabled: false,
			Cron:    "0 6 * * *",
		},
		Retention: RetentionConfig{
			BatchMaxAgeDays:         90,
			ValidationRunMaxAgeDays: 30,
			IntervalMinutes:         60,
		},
	}
}

// Load parses a rink.yaml file over the defaults and applies environment
// overrides. An empty path returns defaults (plus env overrides).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvePath finds the config file path.
// Priority: RINK_CONFIG env var > ./rink.yaml > "" (defaults only).
func ResolvePath() string {
	if p := os.Getenv("RINK_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("rink.yaml"); err == nil {
		return "rink.yaml"
	}
	return ""
}

// applyEnv overlays the operational environment variables onto the
// loaded file. Invalid values are ignored in favour of the file/defaults.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("VALIDATION_AUTO_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Validation.AutoRun = b
		}
	}
	if v := os.Getenv("VALIDATION_DELAY_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.Validation.DelaySeconds = f
		}
	}
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Scheduler.Enabled = b
		}
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.Archive.Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		c.Archive.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.Archive.SecretKey = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv("S3_USE_SSL"); v != "" {
		c.Archive.UseSSL = v == "true"
	}
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	for name, src := range map[string]struct {
		rate    float64
		agent   string
		timeout float64
	}{
		"nhl_api":      {c.NHLAPI.RequestsPerSecond, c.NHLAPI.UserAgent, c.NHLAPI.TimeoutSeconds},
		"html_reports": {c.HTMLReports.RequestsPerSecond, c.HTMLReports.UserAgent, c.HTMLReports.TimeoutSeconds},
		"scrape":       {c.Scrape.RequestsPerSecond, c.Scrape.UserAgent, c.Scrape.TimeoutSeconds},
	} {
		if src.rate <= 0 {
			return fmt.Errorf("config: %s: requests_per_second must be positive", name)
		}
		if src.agent == "" {
			return fmt.Errorf("config: %s: user_agent is required", name)
		}
		if src.timeout <= 0 {
			return fmt.Errorf("config: %s: timeout_seconds must be positive", name)
		}
	}
	if c.Validation.DelaySeconds < 0 {
		return fmt.Errorf("config: validation: delay_seconds must be non-negative")
	}
	if t := c.Validation.NameMatchThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("config: validation: name_match_threshold must be in (0, 1]")
	}
	if c.Scheduler.Enabled && c.Scheduler.Cron == "" {
		return fmt.Errorf("config: scheduler: cron is required when enabled")
	}
	if c.Archive.Endpoint != "" && c.Archive.Bucket == "" {
		return fmt.Errorf("config: archive: bucket is required when endpoint is set")
	}
	return nil
}

// Timeout converts a timeout_seconds value to a duration.
func Timeout(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
