package config

import (
	"errors"
	"fmt"
)

// Validate checks invariants that must hold before the daemon starts.
func (c *Config) Validate() error {
	var errs []error

	if c.TransmissionSetsPath == "" {
		errs = append(errs, errors.New("transmission_sets_path is required"))
	}
	if c.Rig.Type == "" {
		errs = append(errs, errors.New("rig.type is required"))
	}
	if c.Rig.MinFrequencyHz >= c.Rig.MaxFrequencyHz {
		errs = append(errs, fmt.Errorf("rig frequency range invalid: min %d >= max %d",
			c.Rig.MinFrequencyHz, c.Rig.MaxFrequencyHz))
	}
	if c.Rig.MaxPowerW <= 0 {
		errs = append(errs, errors.New("rig.max_power_w must be positive"))
	}
	if _, err := c.RigCapabilities(); err != nil {
		errs = append(errs, err)
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, errors.New("check_interval must be positive"))
	}
	if c.MaxWaitingTime <= 0 {
		errs = append(errs, errors.New("max_waiting_time must be positive"))
	}
	if c.Retry.InitialDelay <= 0 || c.Retry.MaxDelay <= 0 {
		errs = append(errs, errors.New("retry delays must be positive"))
	}
	if c.Retry.InitialDelay > c.Retry.MaxDelay {
		errs = append(errs, errors.New("retry.initial_delay exceeds retry.max_delay"))
	}
	if c.Events.Enabled && c.Events.URL == "" {
		errs = append(errs, errors.New("events.url is required when events are enabled"))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}
