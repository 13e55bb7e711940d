package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grblhc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
device:
  port: /dev/ttyACM0
  spjs: ws://localhost:8989/ws
scheduler:
  tick_interval: 250ms
  stall_threshold: 5s
  status_interval: 1s
http:
  addr: 127.0.0.1:8080
log:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Device.Port)
	assert.Equal(t, 115200, cfg.Device.Baud)
	assert.Equal(t, "ws://localhost:8989/ws", cfg.Device.SPJS)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.TickInterval)
	assert.Equal(t, 10*time.Millisecond, cfg.Scheduler.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.StallThreshold)
	assert.Equal(t, time.Second, cfg.Scheduler.StatusInterval)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Addr)
	assert.Equal(t, "./data", cfg.HTTP.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, os.IsNotExist(err))

	_, err = Load(writeConfig(t, "device: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "scheduler:\n  poll_interval: soon\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "scheduler:\n  poll_interval: 0s\n"))
	assert.EqualError(t, err, "scheduler.poll_interval must be positive, got 0s")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Scheduler.ResetDelay = -time.Second
	assert.EqualError(t, cfg.Validate(), "scheduler.reset_delay must not be negative, got -1s")

	cfg = Default()
	cfg.Scheduler.StallThreshold = time.Millisecond
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Log.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Device.Port = ""
	assert.EqualError(t, cfg.Validate(), "device.port is required")
}

func TestControllerConfig(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.StatusInterval = 3 * time.Second

	cc := cfg.ControllerConfig(nil)
	assert.Equal(t, time.Second, cc.TickInterval)
	assert.Equal(t, 2*time.Second, cc.StallThreshold)
	assert.Equal(t, 2*time.Second, cc.SettleDelay)
	assert.Equal(t, 500*time.Millisecond, cc.DisconnectDelay)
	assert.Equal(t, 3*time.Second, cc.StatusInterval)
}
