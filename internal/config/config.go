// Package config loads the signage configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// LocalFile is the config file looked up in the working directory.
const LocalFile = "signage.yaml"

// Config is the root configuration.
// Source priority:
//  1. explicit path passed to MustLoad/Load;
//  2. the CONFIG_PATH environment variable;
//  3. ./signage.yaml in the working directory;
//  4. environment variables only.
//
// Environment variables override file values in every case.
type Config struct {
	Env string `yaml:"env" env:"ENV" env-default:"local"`

	// Profile selects the playlist document. Missing profile and source are
	// not load errors: the engine shows them on screen instead.
	Profile    string `yaml:"profile"     env:"SIGNAGE_PROFILE"`
	SourceBase string `yaml:"source_base" env:"SCREEN_LIST_URL_BASE"`
	PublicURL  string `yaml:"public_url"  env:"PUBLIC_URL"`

	DataDir  string `yaml:"data_dir"  env:"SIGNAGE_DATA_DIR"`
	LogLevel string `yaml:"log_level" env:"SIGNAGE_LOG_LEVEL" env-default:"info"`

	Schedule ScheduleConfig `yaml:"schedule"`
	Fetch    FetchConfig    `yaml:"fetch"`
	UI       UIConfig       `yaml:"ui"`
}

// ScheduleConfig holds the engine timers.
type ScheduleConfig struct {
	RefreshEvery   time.Duration `yaml:"refresh_every"   env:"REFRESH_EVERY"   env-default:"60s"`
	RebuildEvery   time.Duration `yaml:"rebuild_every"   env:"REBUILD_EVERY"   env-default:"24h"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"20s"`
	RetryDelay     time.Duration `yaml:"retry_delay"     env:"RETRY_DELAY"     env-default:"10m"`
}

// FetchConfig bounds image retrieval.
type FetchConfig struct {
	MaxConcurrent     int     `yaml:"max_concurrent"      env:"FETCH_MAX_CONCURRENT" env-default:"8"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"FETCH_RPS"            env-default:"0"`
}

// UIConfig holds presenter timings.
type UIConfig struct {
	InitialDisplay time.Duration `yaml:"initial_display" env:"UI_INITIAL_DISPLAY" env-default:"10s"`
	Fade           time.Duration `yaml:"fade"            env:"UI_FADE"            env-default:"100ms"`
	NoImageDwell   time.Duration `yaml:"no_image_dwell"  env:"UI_NO_IMAGE_DWELL"  env-default:"1s"`
	Debug          bool          `yaml:"debug"           env:"UI_DEBUG"`
}

// MustLoad wraps Load and panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration by priority:
// 1) explicit path; 2) CONFIG_PATH; 3) ./signage.yaml; 4) ENV.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", p)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return &cfg, nil
	}

	var (
		c   *Config
		err error
	)
	switch {
	case path != "":
		c, err = tryRead(path)
	case os.Getenv("CONFIG_PATH") != "":
		c, err = tryRead(os.Getenv("CONFIG_PATH"))
	default:
		if _, statErr := os.Stat(LocalFile); statErr == nil {
			c, err = tryRead(LocalFile)
		} else {
			if err := cleanenv.ReadEnv(&cfg); err != nil {
				return nil, fmt.Errorf("failed to read env: %w", err)
			}
			c = &cfg
		}
	}
	if err != nil {
		return nil, err
	}

	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyDefaults fills values that cannot be expressed as env-default tags.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
}

// validate checks value ranges.
func (c *Config) validate() error {
	if c.Schedule.RefreshEvery < time.Second {
		return fmt.Errorf("schedule.refresh_every must be at least 1s")
	}
	if c.Schedule.RebuildEvery < time.Minute {
		return fmt.Errorf("schedule.rebuild_every must be at least 1m")
	}
	if c.Schedule.RequestTimeout <= 0 {
		return fmt.Errorf("schedule.request_timeout must be > 0")
	}
	if c.Schedule.RetryDelay <= 0 {
		return fmt.Errorf("schedule.retry_delay must be > 0")
	}
	if c.Fetch.MaxConcurrent <= 0 {
		return fmt.Errorf("fetch.max_concurrent must be > 0")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch.requests_per_second must be >= 0")
	}
	if c.UI.Fade < 0 || c.UI.InitialDisplay < 0 || c.UI.NoImageDwell < 0 {
		return fmt.Errorf("ui timings must not be negative")
	}
	return nil
}

// WithProfile returns a copy of c using profile when it is non-empty. The
// command line takes precedence over file and environment.
func (c Config) WithProfile(profile string) Config {
	if profile != "" {
		c.Profile = profile
	}
	return c
}

// DBPath returns the refresh history database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "signage.db")
}

// EventDir returns the JSONL event log directory.
func (c *Config) EventDir() string {
	return filepath.Join(c.DataDir, "events")
}

// LogDir returns the text log directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// DefaultDataDir returns ~/.signage, or ./.signage if the home directory
// cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".signage"
	}
	return filepath.Join(home, ".signage")
}
