// Package config loads and validates the transmitd configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/radioops/transmitd/internal/rig"
)

// Config represents the application configuration.
type Config struct {
	Rig                  RigConfig     `yaml:"rig"`
	Audio                AudioConfig   `yaml:"audio"`
	TransmissionSetsPath string        `yaml:"transmission_sets_path"`
	CheckInterval        Duration      `yaml:"check_interval"`
	SignalPowerThreshold float64       `yaml:"signal_power_threshold"` // dBm
	MaxWaitingTime       Duration      `yaml:"max_waiting_time"`
	Retry                RetryConfig   `yaml:"retry"`
	History              HistoryConfig `yaml:"history"`
	Events               EventsConfig  `yaml:"events"`
	Metrics              MetricsConfig `yaml:"metrics"`
	LockFile             string        `yaml:"lock_file"`
}

// RigConfig selects and bounds the rig binding.
type RigConfig struct {
	Type           string   `yaml:"type"`
	Address        string   `yaml:"address"`
	MaxPowerW      int      `yaml:"max_power_w"`
	MinFrequencyHz int64    `yaml:"min_frequency_hz"`
	MaxFrequencyHz int64    `yaml:"max_frequency_hz"`
	Modes          []string `yaml:"modes"`
}

// AudioConfig configures the external playback subsystem.
type AudioConfig struct {
	Device          string   `yaml:"device"`
	PlayerCommand   string   `yaml:"player_command"`
	PlayerArgs      []string `yaml:"player_args,omitempty"`
	CalibrationTone string   `yaml:"calibration_tone,omitempty"`
}

// RetryConfig bounds the exponential backoff used for hardware
// acquisition.
type RetryConfig struct {
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
}

// HistoryConfig configures the sqlite transmission history store.
type HistoryConfig struct {
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"`
}

// EventsConfig configures the optional NATS state-transition publisher.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads, expands, defaults and validates the configuration file.
// A validation failure here is the only fatal error class of the
// daemon.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists; its absence is not an error.
	loadEnvFile()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse unmarshals raw YAML (with environment expansion), applies
// defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RigCapabilities converts the configured rig bounds into the
// capability set schedule rows are validated against.
func (c *Config) RigCapabilities() (rig.Capabilities, error) {
	caps := rig.Capabilities{
		MinFrequencyHz: c.Rig.MinFrequencyHz,
		MaxFrequencyHz: c.Rig.MaxFrequencyHz,
		MaxPowerW:      c.Rig.MaxPowerW,
	}
	for _, m := range c.Rig.Modes {
		mode, err := rig.ParseMode(m)
		if err != nil {
			return rig.Capabilities{}, fmt.Errorf("rig.modes: %w", err)
		}
		caps.Modes = append(caps.Modes, mode)
	}
	return caps, nil
}

// RigSettings returns the binding selection for the rig registry.
func (c *Config) RigSettings() (rig.Config, error) {
	caps, err := c.RigCapabilities()
	if err != nil {
		return rig.Config{}, err
	}
	return rig.Config{
		Type:         c.Rig.Type,
		Address:      c.Rig.Address,
		Capabilities: caps,
	}, nil
}

// loadEnvFile loads environment variables from a .env file when one is
// present in the working directory.
func loadEnvFile() {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err == nil {
			fmt.Fprintf(os.Stderr, "Loaded environment variables from %s\n", envPath)
			return
		}
	}
}

// Duration wraps time.Duration for YAML: accepts Go duration strings
// ("10s", "1h30m") or bare numbers interpreted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }
