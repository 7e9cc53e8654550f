package schedule

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/radioops/transmitd/internal/rig"
)

// Schedule CSV columns. The header row is required; column order is not.
const (
	colStartDate = "Start Date"
	colEndDate   = "End Date"
	colStartTime = "Start Time"
	colDuration  = "Duration (minutes)"
	colFrequency = "Frequency (MHz)"
	colMode      = "Mode"
	colPower     = "Power (W)"
	colPause     = "Pause (sec)"
)

// Row defaults recovered from the original schedule format.
const (
	defaultPowerW = 5
	defaultPause  = 60 * time.Second
)

// RowError reports a skipped schedule row. Row errors are warnings:
// the remaining valid rows still load.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("schedule row %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// ParseSchedule reads schedule CSV rows, validating each against the
// rig capabilities. Malformed or invariant-violating rows are returned
// as RowErrors and skipped; only an unreadable header is an error.
func ParseSchedule(r io.Reader, caps rig.Capabilities) ([]Window, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read schedule header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colStartDate, colEndDate, colStartTime, colDuration, colFrequency, colMode, colPower, colPause} {
		if _, ok := cols[required]; !ok {
			return nil, nil, fmt.Errorf("schedule header missing column %q", required)
		}
	}

	var (
		windows []Window
		rowErrs []RowError
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}

		w, err := parseRow(record, cols)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		if err := w.Validate(caps); err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		windows = append(windows, w)
	}
	return windows, rowErrs, nil
}

func parseRow(record []string, cols map[string]int) (Window, error) {
	field := func(name string) string {
		idx := cols[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	startDate, err := time.ParseInLocation(DateLayout, field(colStartDate), time.Local)
	if err != nil {
		return Window{}, fmt.Errorf("start date: %w", err)
	}
	endDate, err := time.ParseInLocation(DateLayout, field(colEndDate), time.Local)
	if err != nil {
		return Window{}, fmt.Errorf("end date: %w", err)
	}
	startClock, err := time.Parse(TimeLayout, field(colStartTime))
	if err != nil {
		return Window{}, fmt.Errorf("start time: %w", err)
	}
	durationMin, err := strconv.Atoi(field(colDuration))
	if err != nil {
		return Window{}, fmt.Errorf("duration: %w", err)
	}
	freqMHz, err := strconv.ParseFloat(field(colFrequency), 64)
	if err != nil {
		return Window{}, fmt.Errorf("frequency: %w", err)
	}
	mode, err := rig.ParseMode(field(colMode))
	if err != nil {
		return Window{}, err
	}
	powerW, err := strconv.Atoi(field(colPower))
	if err != nil {
		return Window{}, fmt.Errorf("power: %w", err)
	}
	pauseSec, err := strconv.Atoi(field(colPause))
	if err != nil {
		return Window{}, fmt.Errorf("pause: %w", err)
	}

	if powerW == 0 {
		powerW = defaultPowerW
	}
	pause := time.Duration(pauseSec) * time.Second
	if pauseSec == 0 {
		pause = defaultPause
	}

	return Window{
		StartDate:   startDate,
		EndDate:     endDate,
		StartTime:   time.Duration(startClock.Hour())*time.Hour + time.Duration(startClock.Minute())*time.Minute,
		Duration:    time.Duration(durationMin) * time.Minute,
		FrequencyHz: int64(math.Round(freqMHz * 1e6)),
		Mode:        mode,
		PowerW:      powerW,
		Pause:       pause,
	}, nil
}
