// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Log       LogConfig             `yaml:"log"`
	Server    ServerConfig          `yaml:"server"`
	Playback  PlaybackConfig        `yaml:"playback"`
	Store     StoreConfig           `yaml:"store"`
	Source    SourceConfig          `yaml:"source"`
	Resume    ResumeConfig          `yaml:"resume"`
	Admission map[string]RuleConfig `yaml:"admission"`
	Autoplay  AutoplayConfig        `yaml:"autoplay"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Output string `yaml:"output" default:"stdout"`
	File   string `yaml:"file"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Addr               string      `yaml:"addr" default:":8080"`
	AdminToken         string      `yaml:"admin_token"`
	ShutdownTimeoutSec int         `yaml:"shutdown_timeout_sec" default:"10" validate:"gte=1,lte=120"`
	Hooks              HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ShutdownTimeout returns the graceful shutdown timeout as a duration.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// PlaybackConfig represents playback session configuration.
type PlaybackConfig struct {
	ProgressIntervalSec int `yaml:"progress_interval_sec" default:"15" validate:"gte=5,lte=120"`
	AttachTimeoutSec    int `yaml:"attach_timeout_sec" default:"10" validate:"gte=1,lte=60"`
	HistorySize         int `yaml:"history_size" default:"25" validate:"gte=0,lte=500"`
	QueuePageSize       int `yaml:"queue_page_size" default:"10" validate:"gte=1,lte=50"`
}

// ProgressInterval returns the progress task tick interval.
func (c PlaybackConfig) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalSec) * time.Second
}

// AttachTimeout returns the voice attach timeout.
func (c PlaybackConfig) AttachTimeout() time.Duration {
	return time.Duration(c.AttachTimeoutSec) * time.Second
}

// StoreConfig represents the snapshot store configuration.
type StoreConfig struct {
	Backend  string         `yaml:"backend" default:"memory" validate:"oneof=memory file sqlite"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// SourceConfig represents the track source configuration.
type SourceConfig struct {
	Provider string              `yaml:"provider" default:"static" validate:"oneof=spotify static"`
	Spotify  SpotifyConfig       `yaml:"spotify"`
	Static   []StaticTrackConfig `yaml:"static,omitempty"`
}

// SpotifyConfig represents Spotify API configuration. Credentials are
// required only when the spotify provider is selected.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// StaticTrackConfig declares one track in the static resolver catalog.
type StaticTrackConfig struct {
	ID          string `yaml:"id" validate:"required"`
	Title       string `yaml:"title" validate:"required"`
	Artist      string `yaml:"artist"`
	DurationSec int    `yaml:"duration_sec" validate:"gte=0"`
	URL         string `yaml:"url" validate:"required"`
}

// ResumeConfig represents startup resume configuration.
type ResumeConfig struct {
	MaxSnapshotAgeHours int `yaml:"max_snapshot_age_hours" default:"24" validate:"gte=1,lte=720"`
}

// MaxSnapshotAge returns the oldest snapshot age still eligible for resume.
func (c ResumeConfig) MaxSnapshotAge() time.Duration {
	return time.Duration(c.MaxSnapshotAgeHours) * time.Hour
}

// RuleConfig represents one admission rule's configuration.
type RuleConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// AutoplayConfig represents autoplay configuration.
type AutoplayConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Requester string           `yaml:"requester" default:"autoplay"`
	Count     int              `yaml:"count" default:"1" validate:"gte=1,lte=10"`
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig represents a single autoplay provider configuration.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Source.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Source.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Source.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Autoplay.Providers {
			if c.Autoplay.Providers[i].Type == "lastfm_similar" {
				if c.Autoplay.Providers[i].Settings == nil {
					c.Autoplay.Providers[i].Settings = map[string]any{}
				}
				c.Autoplay.Providers[i].Settings["api_key"] = v
				break
			}
		}
	}
	if v := os.Getenv("CALLBOX_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("CALLBOX_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
}

// IsRuleEnabled checks if an admission rule is enabled.
func (c *Config) IsRuleEnabled(name string) bool {
	if r, ok := c.Admission[name]; ok {
		return r.Enabled
	}
	return false
}

// RuleSettings returns the settings for an admission rule.
func (c *Config) RuleSettings(name string) map[string]any {
	if r, ok := c.Admission[name]; ok {
		return r.Settings
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Cross-field checks the tag validators cannot express
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateAutoplay(); err != nil {
		return err
	}

	return nil
}

// validateSource checks that the selected track source is fully configured.
func (c *Config) validateSource() error {
	switch c.Source.Provider {
	case "spotify":
		if c.Source.Spotify.ClientID == "" || c.Source.Spotify.ClientSecret == "" {
			return errors.New("source.spotify.client_id and client_secret are required when provider is spotify")
		}
		if c.Source.Spotify.RefreshToken == "" {
			return errors.New("source.spotify.refresh_token is required when provider is spotify (run the auth command to mint one)")
		}
	case "static":
		if len(c.Source.Static) == 0 {
			return errors.New("source.static must list at least one track when provider is static")
		}
	}
	return nil
}

// validateAutoplay checks that autoplay has providers when enabled.
func (c *Config) validateAutoplay() error {
	if !c.Autoplay.Enabled {
		return nil
	}
	if len(c.Autoplay.Providers) == 0 {
		return errors.New("autoplay.providers must list at least one provider when autoplay is enabled")
	}
	return nil
}
