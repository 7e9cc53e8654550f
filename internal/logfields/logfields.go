package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeySet         = "set"
	KeyWindow      = "window"
	KeyPhase       = "phase"
	KeyFromPhase   = "from_phase"
	KeyFrequencyHz = "frequency_hz"
	KeyMode        = "mode"
	KeyPowerW      = "power_w"
	KeySignalDBm   = "signal_dbm"
	KeyAttempt     = "attempt"
	KeyOperation   = "operation"
	KeyFile        = "file"
	KeyPath        = "path"
	KeyDurationMS  = "duration_ms"
	KeyCycleID     = "cycle_id"
	KeyStart       = "start"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Set(name string) slog.Attr       { return slog.String(KeySet, name) }
func Window(key string) slog.Attr     { return slog.String(KeyWindow, key) }
func Phase(p string) slog.Attr        { return slog.String(KeyPhase, p) }
func FromPhase(p string) slog.Attr    { return slog.String(KeyFromPhase, p) }
func FrequencyHz(hz int64) slog.Attr  { return slog.Int64(KeyFrequencyHz, hz) }
func Mode(m string) slog.Attr         { return slog.String(KeyMode, m) }
func PowerW(w int) slog.Attr          { return slog.Int(KeyPowerW, w) }
func SignalDBm(v float64) slog.Attr   { return slog.Float64(KeySignalDBm, v) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Operation(op string) slog.Attr   { return slog.String(KeyOperation, op) }
func File(name string) slog.Attr      { return slog.String(KeyFile, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func CycleID(id string) slog.Attr     { return slog.String(KeyCycleID, id) }
func Start(t time.Time) slog.Attr     { return slog.Time(KeyStart, t) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
