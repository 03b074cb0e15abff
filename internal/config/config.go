package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"fundwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Transport TransportConfig `mapstructure:"transport"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	History   HistoryConfig   `mapstructure:"history"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates the SQLite file store.
type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// SchedulerConfig governs the polling calendar.
type SchedulerConfig struct {
	CronSpec   string `mapstructure:"cron_spec"`
	Timezone   string `mapstructure:"timezone"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// TransportConfig covers fund page retrieval.
type TransportConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DiscordConfig captures bot connectivity.
type DiscordConfig struct {
	Token string `mapstructure:"token"`
	// GuildID scopes slash-command registration to one guild; empty registers
	// the commands globally.
	GuildID string `mapstructure:"guild_id"`
}

// HistoryConfig sets defaults for history queries and exports.
type HistoryConfig struct {
	DefaultLimit  int `mapstructure:"default_limit"`
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FUNDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fundwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.path", "data/fundwatch.db")
	v.SetDefault("database.busy_timeout", "5s")

	// Hourly on weekdays during Amsterdam trading hours; fund pages only move
	// once per day so anything finer is wasted fetches.
	v.SetDefault("scheduler.cron_spec", "0 9-17 * * 1-5")
	v.SetDefault("scheduler.timezone", "Europe/Amsterdam")
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("transport.request_timeout", "15s")
	v.SetDefault("transport.user_agent", "fundwatch/1.0")

	v.SetDefault("history.default_limit", 10)
	v.SetDefault("history.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Scheduler.CronSpec == "" {
		return fmt.Errorf("scheduler.cron_spec is required")
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if c.History.DefaultLimit <= 0 {
		return fmt.Errorf("history.default_limit must be greater than zero")
	}
	if c.History.MaxDataPoints <= 0 {
		return fmt.Errorf("history.max_data_points must be greater than zero")
	}
	return nil
}

// Location resolves the scheduler timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c.Scheduler.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveHistoryLimit returns either the caller override or the config default.
func (c *Config) ResolveHistoryLimit(override int) int {
	if override > 0 {
		return override
	}
	return c.History.DefaultLimit
}
