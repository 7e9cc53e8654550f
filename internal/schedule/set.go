package schedule

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/radioops/transmitd/internal/rig"
)

// ScheduleFileName is the per-set schedule file.
const ScheduleFileName = "schedule.csv"

// Set is one named transmission set: a directory holding a schedule
// and the audio content it plays.
type Set struct {
	Name         string
	Dir          string
	Windows      []Window
	ContentFiles []string // absolute paths, sorted
}

// Schedule is the full loaded schedule across all sets. It is rebuilt
// wholesale on every load and atomically swapped by the daemon, never
// patched in place.
type Schedule struct {
	Sets     []Set
	LoadedAt time.Time
}

// WindowCount returns the number of loaded windows across all sets.
func (s *Schedule) WindowCount() int {
	n := 0
	for _, set := range s.Sets {
		n += len(set.Windows)
	}
	return n
}

// SkippedSetError reports a set directory that was skipped during
// loading (e.g. no schedule file). Like row errors, these are warnings.
type SkippedSetError struct {
	Set string
	Err error
}

func (e SkippedSetError) Error() string {
	return fmt.Sprintf("set %s skipped: %v", e.Set, e.Err)
}

func (e SkippedSetError) Unwrap() error { return e.Err }

// LoadResult carries the non-fatal problems encountered while loading.
type LoadResult struct {
	RowErrors   []RowError
	SkippedSets []SkippedSetError
}

// Load walks the transmission-sets directory and builds the schedule.
// A missing directory is an error (the daemon treats it as fatal at
// startup); per-set and per-row problems are collected in LoadResult.
func Load(setsPath string, caps rig.Capabilities) (*Schedule, LoadResult, error) {
	var result LoadResult

	entries, err := os.ReadDir(setsPath)
	if err != nil {
		return nil, result, fmt.Errorf("read transmission sets directory: %w", err)
	}

	sched := &Schedule{LoadedAt: time.Now()}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		set, rowErrs, err := loadSet(filepath.Join(setsPath, entry.Name()), entry.Name(), caps)
		if err != nil {
			result.SkippedSets = append(result.SkippedSets, SkippedSetError{Set: entry.Name(), Err: err})
			continue
		}
		for i := range rowErrs {
			rowErrs[i].Err = fmt.Errorf("set %s: %w", entry.Name(), rowErrs[i].Err)
		}
		result.RowErrors = append(result.RowErrors, rowErrs...)
		sched.Sets = append(sched.Sets, set)
	}

	sort.Slice(sched.Sets, func(i, j int) bool { return sched.Sets[i].Name < sched.Sets[j].Name })
	return sched, result, nil
}

func loadSet(dir, name string, caps rig.Capabilities) (Set, []RowError, error) {
	schedulePath := filepath.Join(dir, ScheduleFileName)
	f, err := os.Open(schedulePath)
	if err != nil {
		return Set{}, nil, fmt.Errorf("schedule file: %w", err)
	}
	defer f.Close()

	windows, rowErrs, err := ParseSchedule(f, caps)
	if err != nil {
		return Set{}, rowErrs, err
	}

	content, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return Set{}, rowErrs, fmt.Errorf("content files: %w", err)
	}
	sort.Strings(content)

	sort.Slice(windows, func(i, j int) bool {
		if !windows[i].StartDate.Equal(windows[j].StartDate) {
			return windows[i].StartDate.Before(windows[j].StartDate)
		}
		return windows[i].StartTime < windows[j].StartTime
	})

	return Set{Name: name, Dir: dir, Windows: windows, ContentFiles: content}, rowErrs, nil
}
