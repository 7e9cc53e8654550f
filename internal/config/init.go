package config

import (
	"fmt"
	"os"
)

const exampleConfig = `# transmitd configuration
rig:
  type: simulated          # rig binding registered at startup
  address: ""              # transport address for networked rigs
  max_power_w: 100
  min_frequency_hz: 1800000
  max_frequency_hz: 450000000
  modes: [usb, lsb, fm]

audio:
  device: default          # ALSA device name
  player_command: aplay
  # player_args: ["-q", "-D", "{device}"]
  # calibration_tone: /etc/transmitd/tone.wav

transmission_sets_path: ./sets
check_interval: 10s
signal_power_threshold: -80   # dBm; readings at or below count as clear
max_waiting_time: 60s

retry:
  initial_delay: 1s
  max_delay: 60s

history:
  path: ./transmitd.db
  retention: 720h

events:
  enabled: false
  url: nats://127.0.0.1:4222
  subject: transmitd.transitions

metrics:
  enabled: false
  listen: :9090

lock_file: ./transmitd.lock
`

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("write configuration file: %w", err)
	}
	return nil
}
