package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "trashcal/internal/log"
)

const (
	defaultListen      = "127.0.0.1:8765"
	defaultTimezone    = "Asia/Tokyo"
	defaultStore       = "file"
	defaultNotifier    = "desktop"
	defaultWeeklyDay   = "monday"
	defaultResync      = "@every 6h"
	defaultFeedRefresh = "0 5 * * *"
)

// FeedConfig describes a single municipal ICS subscription.
type FeedConfig struct {
	// ID is an internal identifier used for caching and logging.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// BasicAuthConfig protects the HTTP API. PasswordHash is an argon2id hash
// produced by HashPassword (see `trashcal hash-password`).
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"-"`
}

type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" json:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty" json:"max_backups,omitempty"`
}

type ExtractConfig struct {
	// Model overrides the model used for PDF extraction.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone whose calendar days the schedule is
	// evaluated in (e.g. "Asia/Tokyo").
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataDir holds the settings store and the feed cache.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Store selects the settings backend: "file" or "sqlite".
	Store string `yaml:"store" json:"store"`

	Log LogConfig `yaml:"log" json:"log"`

	// Notifier selects the notification sink: "desktop" or "log".
	Notifier string `yaml:"notifier" json:"notifier"`

	// WeeklyDay is the weekday the weekly summary fires on.
	WeeklyDay string `yaml:"weekly_day" json:"weekly_day"`

	// Resync is a cron spec on which the scheduler re-arms its timers.
	Resync string `yaml:"resync" json:"resync"`

	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// FeedRefresh is a cron spec for re-fetching Feeds.
	FeedRefresh string `yaml:"feed_refresh" json:"feed_refresh"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Extract ExtractConfig `yaml:"extract" json:"extract"`
}

// DefaultPath is $XDG_CONFIG_HOME/trashcal/config.yaml (or the platform
// equivalent).
func DefaultPath() string {
	return filepath.Join(defaultDir(), "config.yaml")
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "trashcal")
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing values and resets unknown enum values to
// their defaults so partially-filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.DataDir == "" {
		c.DataDir = defaultDir()
	}

	c.Store = strings.ToLower(c.Store)
	switch c.Store {
	case "file", "sqlite":
	default:
		c.Store = defaultStore
	}

	c.Notifier = strings.ToLower(c.Notifier)
	switch c.Notifier {
	case "desktop", "log":
	default:
		c.Notifier = defaultNotifier
	}

	if _, ok := parseWeekday(c.WeeklyDay); !ok {
		c.WeeklyDay = defaultWeeklyDay
	}
	c.WeeklyDay = strings.ToLower(c.WeeklyDay)

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Resync == "" {
		c.Resync = defaultResync
	}
	if c.FeedRefresh == "" {
		c.FeedRefresh = defaultFeedRefresh
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		if c.Feeds[i].ID == "" {
			c.Feeds[i].ID = c.Feeds[i].Name
		}
		if c.Feeds[i].ID == "" {
			c.Feeds[i].ID = fmt.Sprintf("feed%d", i+1)
		}
	}
}

// Validate checks the values Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.Resync); err != nil {
		errs = append(errs, fmt.Errorf("resync %q: %w", c.Resync, err))
	}
	if _, err := cron.ParseStandard(c.FeedRefresh); err != nil {
		errs = append(errs, fmt.Errorf("feed_refresh %q: %w", c.FeedRefresh, err))
	}
	for _, f := range c.Feeds {
		if f.URL == "" {
			errs = append(errs, fmt.Errorf("feed %s: url is empty", f.ID))
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username != "" && c.BasicAuth.PasswordHash != "" {
		if !strings.HasPrefix(c.BasicAuth.PasswordHash, "$argon2id$") {
			errs = append(errs, errors.New("basic_auth.password_hash is not an argon2id hash"))
		}
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// Weekday is WeeklyDay as a time.Weekday.
func (c *Config) Weekday() time.Weekday {
	d, _ := parseWeekday(c.WeeklyDay)
	return d
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s == strings.ToLower(d.String()) {
			return d, true
		}
	}
	return time.Monday, false
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read and defaults are filled in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			appLog.Info("wrote default config", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions, creating the
// parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// Save is a convenience method on Config that delegates to Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
