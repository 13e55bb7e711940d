// Package config loads grblhc settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mastercactapus/grblhc/device"
	"github.com/mastercactapus/grblhc/grbl"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Device    Device    `yaml:"device"`
	Scheduler Scheduler `yaml:"scheduler"`
	HTTP      HTTP      `yaml:"http"`
	Log       Log       `yaml:"log"`
}

type Device struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	// SPJS, if set, is the websocket URL of a Serial Port JSON Server to
	// open Port through.
	SPJS string `yaml:"spjs"`
}

type Scheduler struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	StallThreshold  time.Duration `yaml:"stall_threshold"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	ResetDelay      time.Duration `yaml:"reset_delay"`
	DisconnectDelay time.Duration `yaml:"disconnect_delay"`
	StatusInterval  time.Duration `yaml:"status_interval"`
}

type HTTP struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`
}

type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Device: Device{
			Port: "/dev/ttyUSB0",
			Baud: device.DefaultBaud,
		},
		Scheduler: Scheduler{
			TickInterval:    grbl.DefaultTickInterval,
			PollInterval:    grbl.DefaultPollInterval,
			StallThreshold:  grbl.DefaultStallThreshold,
			ReadTimeout:     grbl.DefaultReadTimeout,
			SettleDelay:     grbl.DefaultSettleDelay,
			ResetDelay:      grbl.DefaultResetDelay,
			DisconnectDelay: grbl.DefaultDisconnectDelay,
		},
		HTTP: HTTP{
			Addr:    ":9091",
			DataDir: "./data",
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path on top of the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Device.Port == "" {
		return errors.New("device.port is required")
	}
	if cfg.Device.Baud <= 0 {
		return fmt.Errorf("device.baud must be positive, got %d", cfg.Device.Baud)
	}

	s := cfg.Scheduler
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"tick_interval", s.TickInterval},
		{"poll_interval", s.PollInterval},
		{"stall_threshold", s.StallThreshold},
		{"read_timeout", s.ReadTimeout},
	} {
		if d.val <= 0 {
			return fmt.Errorf("scheduler.%s must be positive, got %s", d.name, d.val)
		}
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"settle_delay", s.SettleDelay},
		{"reset_delay", s.ResetDelay},
		{"disconnect_delay", s.DisconnectDelay},
		{"status_interval", s.StatusInterval},
	} {
		if d.val < 0 {
			return fmt.Errorf("scheduler.%s must not be negative, got %s", d.name, d.val)
		}
	}
	if s.StallThreshold < s.PollInterval {
		return errors.New("scheduler.stall_threshold must not be shorter than poll_interval")
	}

	if cfg.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	_, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ControllerConfig maps the scheduler settings onto a grbl.Config.
func (cfg *Config) ControllerConfig(open device.Opener) grbl.Config {
	s := cfg.Scheduler
	return grbl.Config{
		Open:            open,
		TickInterval:    s.TickInterval,
		PollInterval:    s.PollInterval,
		StallThreshold:  s.StallThreshold,
		ReadTimeout:     s.ReadTimeout,
		SettleDelay:     s.SettleDelay,
		ResetDelay:      s.ResetDelay,
		DisconnectDelay: s.DisconnectDelay,
		StatusInterval:  s.StatusInterval,
	}
}
