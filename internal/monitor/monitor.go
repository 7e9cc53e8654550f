// Package monitor watches the received signal level to decide whether
// the channel is clear to transmit on.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/radioops/transmitd/internal/logfields"
	"github.com/radioops/transmitd/internal/rig"
)

// Verdict classifies one signal-level reading.
type Verdict int

const (
	// Clear: signal level at or below the threshold, safe to transmit.
	Clear Verdict = iota
	// Busy: someone is using the frequency.
	Busy
	// Unknown: the reading failed; treated as busy for safety.
	Unknown
)

func (v Verdict) String() string {
	switch v {
	case Clear:
		return "clear"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// ErrBusyTimeout is returned when the channel never cleared within the
// maximum waiting time. The caller skips the window; transmitting blind
// is never an option.
var ErrBusyTimeout = errors.New("channel busy past max waiting time")

// Monitor polls the rig's signal level and reports when the channel is
// clear.
type Monitor struct {
	rig          rig.Controller
	thresholdDBm float64
	pollInterval time.Duration
	maxWait      time.Duration
	logger       *slog.Logger
	clock        clockwork.Clock
}

// New constructs a Monitor. The threshold is in dBm: readings at or
// below it classify as Clear.
func New(ctrl rig.Controller, thresholdDBm float64, pollInterval, maxWait time.Duration, logger *slog.Logger, clock clockwork.Clock) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{
		rig:          ctrl,
		thresholdDBm: thresholdDBm,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		logger:       logger,
		clock:        clock,
	}
}

// Classify maps one signal reading to a verdict.
func (m *Monitor) Classify(levelDBm float64, err error) Verdict {
	if err != nil {
		return Unknown
	}
	if levelDBm <= m.thresholdDBm {
		return Clear
	}
	return Busy
}

// WaitForClear polls the signal level until the channel is clear. It
// returns nil once a reading classifies Clear, ErrBusyTimeout when the
// channel stayed busy (or unreadable) past the maximum waiting time,
// and ctx.Err() on cancellation.
func (m *Monitor) WaitForClear(ctx context.Context) error {
	deadline := m.clock.Now().Add(m.maxWait)

	for {
		level, err := m.rig.SignalLevel(ctx)
		verdict := m.Classify(level, err)
		switch verdict {
		case Clear:
			m.logger.Debug("channel clear",
				logfields.SignalDBm(level),
				slog.Float64("threshold_dbm", m.thresholdDBm))
			return nil
		case Unknown:
			// Read failures count as busy: never transmit blind.
			m.logger.Warn("signal read failed; treating channel as busy",
				logfields.Error(err))
		default:
			m.logger.Debug("channel busy",
				logfields.SignalDBm(level),
				slog.Float64("threshold_dbm", m.thresholdDBm))
		}

		if !m.clock.Now().Before(deadline) {
			return ErrBusyTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(m.pollInterval):
		}
	}
}
