// Package schedule parses transmission-set schedules and matches
// transmission windows against the clock.
//
// A window recurs daily: it fires once per day at its start time for
// every day between its start and end dates inclusive. This matches the
// per-day expansion the schedule format was designed for.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/radioops/transmitd/internal/rig"
)

// DateLayout is the schedule CSV date format.
const DateLayout = "02.01.2006"

// TimeLayout is the schedule CSV start-time format.
const TimeLayout = "15:04"

// Window is one schedule row: a recurring daily transmission slot with
// its radio parameters. Windows are immutable once loaded; the daemon
// never writes the schedule.
type Window struct {
	StartDate   time.Time     // date-only
	EndDate     time.Time     // date-only, inclusive
	StartTime   time.Duration // offset from local midnight
	Duration    time.Duration
	FrequencyHz int64
	Mode        rig.Mode
	PowerW      int
	Pause       time.Duration
}

// Key identifies a window for logs and history records.
func (w Window) Key() string {
	return fmt.Sprintf("%s..%s %02d:%02d+%dm %dHz %s %dW",
		w.StartDate.Format(DateLayout), w.EndDate.Format(DateLayout),
		int(w.StartTime.Hours()), int(w.StartTime.Minutes())%60,
		int(w.Duration.Minutes()), w.FrequencyHz, w.Mode, w.PowerW)
}

// Validate checks the row invariants against the rig capabilities.
func (w Window) Validate(caps rig.Capabilities) error {
	var errs []error
	if w.EndDate.Before(w.StartDate) {
		errs = append(errs, fmt.Errorf("end date %s before start date %s",
			w.EndDate.Format(DateLayout), w.StartDate.Format(DateLayout)))
	}
	if w.Duration <= 0 {
		errs = append(errs, errors.New("duration must be positive"))
	}
	if !caps.SupportsFrequency(w.FrequencyHz) {
		errs = append(errs, fmt.Errorf("frequency %d Hz outside rig range [%d, %d]",
			w.FrequencyHz, caps.MinFrequencyHz, caps.MaxFrequencyHz))
	}
	if !caps.SupportsPower(w.PowerW) {
		errs = append(errs, fmt.Errorf("power %d W exceeds rig maximum %d W", w.PowerW, caps.MaxPowerW))
	}
	if !caps.SupportsMode(w.Mode) {
		errs = append(errs, fmt.Errorf("mode %s not supported by rig", w.Mode))
	}
	return errors.Join(errs...)
}

// activeOn reports whether the window recurs on the given day.
func (w Window) activeOn(day time.Time) bool {
	d := dateOf(day)
	return !d.Before(w.StartDate) && !d.After(w.EndDate)
}

// startOn returns the concrete start instant of the window's occurrence
// on the given day.
func (w Window) startOn(day time.Time) time.Time {
	return dateOf(day).Add(w.StartTime)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
