// Package rig defines the capability surface for controlling a radio
// transceiver. The daemon consumes any binding satisfying Controller;
// the wire protocol of a concrete binding is outside this package.
package rig

import (
	"context"
	"fmt"
	"strings"
)

// Mode is an operating mode of the transceiver.
type Mode string

const (
	ModeUSB Mode = "USB"
	ModeLSB Mode = "LSB"
	ModeFM  Mode = "FM"
)

// ParseMode maps a schedule mode column to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "USB":
		return ModeUSB, nil
	case "LSB":
		return ModeLSB, nil
	case "FM":
		return ModeFM, nil
	default:
		return "", fmt.Errorf("invalid mode: %q", s)
	}
}

// Capabilities describes the limits of the attached transceiver.
// Schedule rows are validated against these at parse time.
type Capabilities struct {
	MinFrequencyHz int64
	MaxFrequencyHz int64
	MaxPowerW      int
	Modes          []Mode
}

// SupportsFrequency reports whether hz lies in the rig's tunable range.
func (c Capabilities) SupportsFrequency(hz int64) bool {
	return hz >= c.MinFrequencyHz && hz <= c.MaxFrequencyHz
}

// SupportsPower reports whether the rig can emit watts.
func (c Capabilities) SupportsPower(watts int) bool {
	return watts > 0 && watts <= c.MaxPowerW
}

// SupportsMode reports whether mode is in the rig's supported set.
func (c Capabilities) SupportsMode(m Mode) bool {
	for _, mode := range c.Modes {
		if mode == m {
			return true
		}
	}
	return false
}

// State is a transient snapshot of the transceiver, read through the
// adapter. It is owned by the daemon loop for the duration of one cycle
// and never persisted.
type State struct {
	FrequencyHz int64
	Mode        Mode
	PowerW      int
	PTT         bool
	SignalDBm   float64
	Connected   bool
}

// Controller is the capability the daemon drives. Implementations own
// transport-level reconnection; callers never retry at the transport
// level, only whole operations via the retry supervisor.
type Controller interface {
	// Connect establishes the rig session. Fails with ErrUnavailable
	// when the endpoint cannot be reached.
	Connect(ctx context.Context) error
	SetFrequency(ctx context.Context, hz int64) error
	SetMode(ctx context.Context, mode Mode) error
	SetPower(ctx context.Context, watts int) error
	SetPTT(ctx context.Context, on bool) error
	// SignalLevel reads the received signal strength in dBm.
	SignalLevel(ctx context.Context) (float64, error)
	Close() error
}
