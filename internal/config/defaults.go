package config

import "time"

// Default values applied before validation. The rig bounds default to
// a generous HF through 70 cm range so a missing block does not reject
// every schedule row.
const (
	defaultCheckInterval   = 10 * time.Second
	defaultMaxWaitingTime  = 60 * time.Second
	defaultRetryInitial    = time.Second
	defaultRetryMax        = 60 * time.Second
	defaultHistoryRetain   = 30 * 24 * time.Hour
	defaultSignalThreshold = -80.0
)

func (c *Config) applyDefaults() {
	if c.Rig.Type == "" {
		c.Rig.Type = "simulated"
	}
	if c.Rig.MaxPowerW == 0 {
		c.Rig.MaxPowerW = 100
	}
	if c.Rig.MinFrequencyHz == 0 {
		c.Rig.MinFrequencyHz = 1_800_000
	}
	if c.Rig.MaxFrequencyHz == 0 {
		c.Rig.MaxFrequencyHz = 450_000_000
	}
	if len(c.Rig.Modes) == 0 {
		c.Rig.Modes = []string{"USB", "LSB", "FM"}
	}

	if c.Audio.Device == "" {
		c.Audio.Device = "default"
	}
	if c.Audio.PlayerCommand == "" {
		c.Audio.PlayerCommand = "aplay"
	}

	if c.CheckInterval == 0 {
		c.CheckInterval = Duration(defaultCheckInterval)
	}
	if c.SignalPowerThreshold == 0 {
		c.SignalPowerThreshold = defaultSignalThreshold
	}
	if c.MaxWaitingTime == 0 {
		c.MaxWaitingTime = Duration(defaultMaxWaitingTime)
	}

	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = Duration(defaultRetryInitial)
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = Duration(defaultRetryMax)
	}

	if c.History.Path == "" {
		c.History.Path = "./transmitd.db"
	}
	if c.History.Retention == 0 {
		c.History.Retention = Duration(defaultHistoryRetain)
	}

	if c.Events.Subject == "" {
		c.Events.Subject = "transmitd.transitions"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
	if c.LockFile == "" {
		c.LockFile = "./transmitd.lock"
	}
}
