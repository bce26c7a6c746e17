// Package config provides configuration management for radiarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort         = 8080
	defaultServerTimeout      = 30 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultMaxOpenConns       = 25
	defaultMaxIdleConns       = 10
	defaultConnMaxIdleTime    = 30 * time.Minute
	defaultProbeTimeout       = 3 * time.Second
	defaultProbeSniffBytes    = 4096
	defaultProbeCacheTTL      = time.Hour
	defaultStallGrace         = 15 * time.Second
	defaultKillGrace          = 5 * time.Second
	defaultMaxSessions        = 32
	defaultJanitorInterval    = time.Second
	defaultStartTimeout       = 10 * time.Second
	defaultAudioBitrate       = "128k"
	defaultAudioSampleRate    = 44100
	defaultCatalogTimeout     = 8 * time.Second
	defaultCatalogLimit       = 32
	defaultDiscoveryTimeout   = 3 * time.Second
	defaultJournalRetention   = 30 * 24 * time.Hour
	defaultJournalPruneCron   = "0 0 * * * *"  // hourly
	defaultProbeCachePrune    = "0 */10 * * * *" // every 10 minutes
	defaultSpeakerVolumeMax   = 100
)

// Default radio-browser mirrors, tried in order with per-mirror circuit breakers.
var defaultCatalogMirrors = []string{
	"https://de1.api.radio-browser.info",
	"https://de2.api.radio-browser.info",
	"https://fi1.api.radio-browser.info",
}

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Relay     RelayConfig     `mapstructure:"relay"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Speakers  SpeakersConfig  `mapstructure:"speakers"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	// AdvertiseHost is the host placed in relay URLs handed to speakers.
	// Empty means autodetect the outbound LAN address at startup.
	AdvertiseHost   string        `mapstructure:"advertise_host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout applies to API responses only; stream routes are exempt
	// because a live relay holds its response open indefinitely.
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn" masq:"secret"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// RelayConfig holds relay session lifecycle configuration.
type RelayConfig struct {
	// StallGrace is how long a session without a consumer stays addressable
	// before it is torn down. Speakers retry within a few seconds, so this
	// must comfortably exceed their reconnect interval.
	StallGrace time.Duration `mapstructure:"stall_grace"`

	// KillGrace is how long terminate waits after a graceful stop signal
	// before force-killing the transcoder process group.
	KillGrace time.Duration `mapstructure:"kill_grace"`

	// StartTimeout bounds how long a session may sit in the starting state
	// before the spawn is declared failed.
	StartTimeout time.Duration `mapstructure:"start_timeout"`

	// MaxSessions caps concurrent relay sessions across all devices.
	MaxSessions int `mapstructure:"max_sessions"`

	// JanitorInterval is how often stalled and expired sessions are swept.
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

// FFmpegConfig holds transcoder subprocess configuration. The output
// container and codec are fixed by the relay for speaker compatibility;
// bitrate and sample rate are tunable.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // empty = resolve "ffmpeg" from PATH
	Bitrate    string `mapstructure:"bitrate"`     // e.g. "128k"
	SampleRate int    `mapstructure:"sample_rate"` // e.g. 44100
}

// ProbeConfig holds stream probing configuration.
type ProbeConfig struct {
	// Timeout bounds the whole probe including redirects and the sniff read.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxSniffBytes caps how much of the stream body the prober reads.
	// Supports human-readable values like "4KB".
	MaxSniffBytes ByteSize `mapstructure:"max_sniff_bytes"`

	// CacheTTL is how long a probe verdict for a URL is reused.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// UserAgent is sent on probe requests. Some stations vary their
	// response by player, so this mimics the speaker's own client.
	UserAgent string `mapstructure:"user_agent"`
}

// CatalogConfig holds station catalog (radio-browser) configuration.
type CatalogConfig struct {
	Mirrors      []string      `mapstructure:"mirrors"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DefaultLimit int           `mapstructure:"default_limit"`
}

// SpeakersConfig holds speaker discovery and static registration.
type SpeakersConfig struct {
	// Discovery enables SSDP M-SEARCH discovery on startup.
	Discovery        bool          `mapstructure:"discovery"`
	DiscoveryTimeout time.Duration `mapstructure:"discovery_timeout"`

	// Static lists speakers that are always registered, discovery aside.
	Static []SpeakerEntry `mapstructure:"static"`
}

// SpeakerEntry describes one statically configured speaker.
type SpeakerEntry struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"` // host:port of the device's UPnP endpoint
}

// SchedulerConfig holds background maintenance job configuration.
type SchedulerConfig struct {
	// JournalRetention is how long finished session records are kept.
	// Supports day/week suffixes like "30d".
	JournalRetention Duration `mapstructure:"journal_retention"`

	// JournalPruneCron is the 6-field cron expression for journal pruning.
	JournalPruneCron string `mapstructure:"journal_prune_cron"`

	// ProbeCachePruneCron is the 6-field cron expression for expiring
	// stale probe verdicts.
	ProbeCachePruneCron string `mapstructure:"probe_cache_prune_cron"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with RADIARR_ and use underscores for
// nesting. Example: RADIARR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/radiarr")
		v.AddConfigPath("$HOME/.radiarr")
	}

	v.SetEnvPrefix("RADIARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.advertise_host", "")
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "radiarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Relay defaults
	v.SetDefault("relay.stall_grace", defaultStallGrace)
	v.SetDefault("relay.kill_grace", defaultKillGrace)
	v.SetDefault("relay.start_timeout", defaultStartTimeout)
	v.SetDefault("relay.max_sessions", defaultMaxSessions)
	v.SetDefault("relay.janitor_interval", defaultJanitorInterval)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.bitrate", defaultAudioBitrate)
	v.SetDefault("ffmpeg.sample_rate", defaultAudioSampleRate)

	// Probe defaults
	v.SetDefault("probe.timeout", defaultProbeTimeout)
	v.SetDefault("probe.max_sniff_bytes", defaultProbeSniffBytes)
	v.SetDefault("probe.cache_ttl", defaultProbeCacheTTL)
	v.SetDefault("probe.user_agent", "Linux UPnP/1.0 Sonos/99.9 (Probe)")

	// Catalog defaults
	v.SetDefault("catalog.mirrors", defaultCatalogMirrors)
	v.SetDefault("catalog.timeout", defaultCatalogTimeout)
	v.SetDefault("catalog.default_limit", defaultCatalogLimit)

	// Speaker defaults
	v.SetDefault("speakers.discovery", true)
	v.SetDefault("speakers.discovery_timeout", defaultDiscoveryTimeout)

	// Scheduler defaults
	v.SetDefault("scheduler.journal_retention", defaultJournalRetention)
	v.SetDefault("scheduler.journal_prune_cron", defaultJournalPruneCron)
	v.SetDefault("scheduler.probe_cache_prune_cron", defaultProbeCachePrune)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Relay.StallGrace < 0 {
		return fmt.Errorf("relay.stall_grace must not be negative")
	}
	if c.Relay.KillGrace <= 0 {
		return fmt.Errorf("relay.kill_grace must be positive")
	}
	if c.Relay.MaxSessions < 1 {
		return fmt.Errorf("relay.max_sessions must be at least 1")
	}
	if c.Relay.JanitorInterval <= 0 {
		return fmt.Errorf("relay.janitor_interval must be positive")
	}

	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}
	if c.Probe.MaxSniffBytes < 512 {
		return fmt.Errorf("probe.max_sniff_bytes must be at least 512")
	}

	if len(c.Catalog.Mirrors) == 0 {
		return fmt.Errorf("catalog.mirrors must list at least one mirror")
	}
	if c.Catalog.DefaultLimit < 1 {
		return fmt.Errorf("catalog.default_limit must be at least 1")
	}

	if c.FFmpeg.SampleRate < 8000 {
		return fmt.Errorf("ffmpeg.sample_rate must be at least 8000")
	}

	for i, sp := range c.Speakers.Static {
		if sp.ID == "" {
			return fmt.Errorf("speakers.static[%d].id is required", i)
		}
		if sp.Address == "" {
			return fmt.Errorf("speakers.static[%d].address is required", i)
		}
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
