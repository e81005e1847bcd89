package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func loadFresh(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFresh(t)

	if cfg.VID != DefaultVID || cfg.PID != DefaultPID {
		t.Errorf("ids = %s:%s, want %s:%s", cfg.VID, cfg.PID, DefaultVID, DefaultPID)
	}
	if cfg.Cfg != 0 || cfg.Intf != 0 || cfg.Alt != 0 {
		t.Errorf("selection = %d/%d/%d, want 0/0/0", cfg.Cfg, cfg.Intf, cfg.Alt)
	}
	if cfg.PollTimeout != DefaultPollTimeout {
		t.Errorf("PollTimeout = %v, want %v", cfg.PollTimeout, DefaultPollTimeout)
	}
	if cfg.ControlTimeout != DefaultControlTimeout {
		t.Errorf("ControlTimeout = %v, want %v", cfg.ControlTimeout, DefaultControlTimeout)
	}
	if cfg.HistoryDB != DefaultHistoryDB {
		t.Errorf("HistoryDB = %s, want %s", cfg.HistoryDB, DefaultHistoryDB)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	vid, _ := cfg.Vendor()
	pid, _ := cfg.Product()
	if vid != 0x0483 || pid != 0xDF11 {
		t.Errorf("Vendor/Product = %04x:%04x, want 0483:df11", vid, pid)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("DFUSE_ALT", "1")
	t.Setenv("DFUSE_POLL_TIMEOUT", "2s")
	t.Setenv("DFUSE_PID", "0xdf12")

	cfg := loadFresh(t)

	if cfg.Alt != 1 {
		t.Errorf("Alt = %d, want 1", cfg.Alt)
	}
	if cfg.PollTimeout != 2*time.Second {
		t.Errorf("PollTimeout = %v, want 2s", cfg.PollTimeout)
	}
	if pid, _ := cfg.Product(); pid != 0xDF12 {
		t.Errorf("Product = %04x, want df12", pid)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			VID:            "0x0483",
			PID:            "0xdf11",
			PollTimeout:    time.Second,
			ControlTimeout: time.Second,
			LogLevel:       "info",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bare hex pid", func(c *Config) { c.PID = "df11" }, false},
		{"empty vid", func(c *Config) { c.VID = "" }, true},
		{"bad pid", func(c *Config) { c.PID = "zz" }, true},
		{"pid too large", func(c *Config) { c.PID = "0x10000" }, true},
		{"negative cfg", func(c *Config) { c.Cfg = -1 }, true},
		{"alt too large", func(c *Config) { c.Alt = 256 }, true},
		{"zero poll timeout", func(c *Config) { c.PollTimeout = 0 }, true},
		{"zero control timeout", func(c *Config) { c.ControlTimeout = 0 }, true},
		{"transfer size too large", func(c *Config) { c.TransferSize = 0x10000 }, true},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := (&Config{LogLevel: tt.in}).Level()
		if err != nil || got != tt.want {
			t.Errorf("Level(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}
