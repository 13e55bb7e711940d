package grbl

import (
	"time"

	"github.com/mastercactapus/grblhc/device"
	"github.com/sirupsen/logrus"
)

// Config configures a Controller.
//
// Zero values for TickInterval, PollInterval, StallThreshold and ReadTimeout
// are replaced by their defaults. SettleDelay, ResetDelay and
// DisconnectDelay are used as given, so zero means no delay.
type Config struct {
	// Open is used by Connect. Required.
	Open device.Opener

	Logger logrus.FieldLogger

	// Streamer runs jobs. If nil, a LineStreamer is used.
	Streamer Streamer

	// TickInterval is the scheduler period.
	TickInterval time.Duration

	// PollInterval is how often a waiting command checks for input.
	PollInterval time.Duration

	// StallThreshold is how long a command may go without a response
	// before the device is nudged.
	StallThreshold time.Duration

	// ReadTimeout bounds single line reads (status reports, banners).
	ReadTimeout time.Duration

	// SettleDelay is the pause after waking the device on Connect.
	SettleDelay time.Duration

	// ResetDelay is the pause after a soft reset.
	ResetDelay time.Duration

	// DisconnectDelay is how long Disconnect waits before closing the device.
	DisconnectDelay time.Duration

	// StatusInterval, if set, makes Run query status periodically.
	StatusInterval time.Duration

	// Exit is called once the device was closed by Disconnect.
	Exit func()
}

const (
	DefaultTickInterval    = time.Second
	DefaultPollInterval    = 10 * time.Millisecond
	DefaultStallThreshold  = 2 * time.Second
	DefaultReadTimeout     = time.Second
	DefaultSettleDelay     = 2 * time.Second
	DefaultResetDelay      = 100 * time.Millisecond
	DefaultDisconnectDelay = 500 * time.Millisecond
)

// DefaultConfig returns a Config with every delay set to its default.
func DefaultConfig(open device.Opener) Config {
	return Config{
		Open:            open,
		TickInterval:    DefaultTickInterval,
		PollInterval:    DefaultPollInterval,
		StallThreshold:  DefaultStallThreshold,
		ReadTimeout:     DefaultReadTimeout,
		SettleDelay:     DefaultSettleDelay,
		ResetDelay:      DefaultResetDelay,
		DisconnectDelay: DefaultDisconnectDelay,
	}
}

func (cfg *Config) setDefaults() {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = DefaultStallThreshold
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
}
