package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all dfuse-tool configuration
type Config struct {
	// Device selection
	VID   string `mapstructure:"vid"`
	PID   string `mapstructure:"pid"`
	Cfg   int    `mapstructure:"cfg"`
	Intf  int    `mapstructure:"intf"`
	Alt   int    `mapstructure:"alt"`
	Force bool   `mapstructure:"force"`

	// Transfer tuning
	PollTimeout    time.Duration `mapstructure:"poll-timeout"`
	ControlTimeout time.Duration `mapstructure:"control-timeout"`
	TransferSize   int           `mapstructure:"transfer-size"`

	LogLevel string `mapstructure:"log-level"`

	// Operation journal
	HistoryDB string `mapstructure:"history-db"`

	// S3 configuration
	S3Region    string `mapstructure:"s3-region"`
	S3Anonymous bool   `mapstructure:"s3-anonymous"`
}

// Defaults
const (
	DefaultVID            = "0x0483"
	DefaultPID            = "0xdf11"
	DefaultPollTimeout    = 30 * time.Second
	DefaultControlTimeout = 5 * time.Second
	DefaultHistoryDB      = ".dfuse/history.db"
)

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	viper.SetDefault("vid", DefaultVID)
	viper.SetDefault("pid", DefaultPID)
	viper.SetDefault("cfg", 0)
	viper.SetDefault("intf", 0)
	viper.SetDefault("alt", 0)
	viper.SetDefault("force", false)
	viper.SetDefault("poll-timeout", DefaultPollTimeout)
	viper.SetDefault("control-timeout", DefaultControlTimeout)
	viper.SetDefault("transfer-size", 0)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("history-db", DefaultHistoryDB)
	viper.SetDefault("s3-region", "")
	viper.SetDefault("s3-anonymous", false)

	// Environment variables (DFUSE_VID, DFUSE_POLL_TIMEOUT, etc.)
	viper.SetEnvPrefix("DFUSE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("dfuse")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.dfuse")

	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if _, err := c.Vendor(); err != nil {
		return err
	}
	if _, err := c.Product(); err != nil {
		return err
	}
	if c.Cfg < 0 {
		return fmt.Errorf("cfg must be non-negative")
	}
	if c.Intf < 0 || c.Intf > 0xFF {
		return fmt.Errorf("intf must be between 0 and 255")
	}
	if c.Alt < 0 || c.Alt > 0xFF {
		return fmt.Errorf("alt must be between 0 and 255")
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll-timeout must be positive")
	}
	if c.ControlTimeout <= 0 {
		return fmt.Errorf("control-timeout must be positive")
	}
	if c.TransferSize < 0 || c.TransferSize > 0xFFFF {
		return fmt.Errorf("transfer-size must be between 0 and 65535")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Vendor returns the parsed USB vendor id.
func (c *Config) Vendor() (uint16, error) {
	return parseID("vid", c.VID)
}

// Product returns the parsed USB product id.
func (c *Config) Product() (uint16, error) {
	return parseID("pid", c.PID)
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log-level %q", c.LogLevel)
}

// parseID accepts decimal, 0x-prefixed hex, or bare hex ids ("df11").
func parseID(name, s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%s cannot be empty", name)
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		v, err = strconv.ParseUint(s, 16, 16)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return uint16(v), nil
}
