package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radioops/transmitd/internal/rig"
)

const minimalYAML = `
transmission_sets_path: ./sets
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	require.Equal(t, "simulated", cfg.Rig.Type)
	require.Equal(t, 100, cfg.Rig.MaxPowerW)
	require.Equal(t, 10*time.Second, cfg.CheckInterval.Std())
	require.Equal(t, 60*time.Second, cfg.MaxWaitingTime.Std())
	require.Equal(t, -80.0, cfg.SignalPowerThreshold)
	require.Equal(t, time.Second, cfg.Retry.InitialDelay.Std())
	require.Equal(t, 60*time.Second, cfg.Retry.MaxDelay.Std())
	require.Equal(t, "aplay", cfg.Audio.PlayerCommand)
	require.Equal(t, "transmitd.transitions", cfg.Events.Subject)
}

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
rig:
  type: simulated
  address: "localhost:4532"
  max_power_w: 50
  min_frequency_hz: 7000000
  max_frequency_hz: 14350000
  modes: [USB, LSB]
audio:
  device: "hw:1,0"
  player_command: "ffplay"
transmission_sets_path: /var/lib/transmitd/sets
check_interval: 5s
signal_power_threshold: -75
max_waiting_time: 90s
retry:
  initial_delay: 500ms
  max_delay: 30s
events:
  enabled: true
  url: "nats://127.0.0.1:4222"
metrics:
  enabled: true
  listen: ":9100"
`))
	require.NoError(t, err)

	require.Equal(t, "localhost:4532", cfg.Rig.Address)
	require.Equal(t, 5*time.Second, cfg.CheckInterval.Std())
	require.Equal(t, -75.0, cfg.SignalPowerThreshold)
	require.Equal(t, 90*time.Second, cfg.MaxWaitingTime.Std())
	require.Equal(t, 500*time.Millisecond, cfg.Retry.InitialDelay.Std())

	caps, err := cfg.RigCapabilities()
	require.NoError(t, err)
	require.Equal(t, []rig.Mode{rig.ModeUSB, rig.ModeLSB}, caps.Modes)
	require.True(t, caps.SupportsFrequency(14_230_000))
	require.False(t, caps.SupportsFrequency(145_500_000))
}

func TestParseNumericDurationsAreSeconds(t *testing.T) {
	cfg, err := Parse([]byte(`
transmission_sets_path: ./sets
check_interval: 15
max_waiting_time: 120
`))
	require.NoError(t, err)
	require.Equal(t, 15*time.Second, cfg.CheckInterval.Std())
	require.Equal(t, 2*time.Minute, cfg.MaxWaitingTime.Std())
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("TRANSMITD_SETS", "/srv/sets")
	cfg, err := Parse([]byte("transmission_sets_path: ${TRANSMITD_SETS}\n"))
	require.NoError(t, err)
	require.Equal(t, "/srv/sets", cfg.TransmissionSetsPath)
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing sets path", ``},
		{"inverted frequency range", `
transmission_sets_path: ./sets
rig:
  min_frequency_hz: 450000000
  max_frequency_hz: 1800000
`},
		{"unknown mode", `
transmission_sets_path: ./sets
rig:
  modes: [AM]
`},
		{"events enabled without url", `
transmission_sets_path: ./sets
events:
  enabled: true
`},
		{"initial delay above cap", `
transmission_sets_path: ./sets
retry:
  initial_delay: 2m
  max_delay: 30s
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "./sets", cfg.TransmissionSetsPath)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
