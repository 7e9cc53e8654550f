package schedule

import (
	"fmt"
	"sort"
	"time"
)

// Occurrence is a window projected onto a concrete day.
type Occurrence struct {
	Set    string
	Dir    string
	Files  []string
	Window Window
	Start  time.Time
	End    time.Time
}

// Key identifies one concrete occurrence for logs, history and
// conflict deduplication.
func (o Occurrence) Key() string {
	return fmt.Sprintf("%s@%s", o.Set, o.Start.Format("2006-01-02T15:04"))
}

// Matcher resolves which occurrence is due at a given instant. It is a
// pure function of the schedule and the clock; callers own logging and
// recording of conflicts.
type Matcher struct{}

// NewMatcher returns a Matcher.
func NewMatcher() *Matcher { return &Matcher{} }

// Active returns the occurrence due at now, if any. When several
// occurrences overlap, the earliest-starting one wins and the others
// are returned as conflicts, skipped for this occurrence. A window
// whose start elapsed by more than its duration is missed, never
// retroactively fired.
func (m *Matcher) Active(s *Schedule, now time.Time) (Occurrence, []Occurrence, bool) {
	if s == nil {
		return Occurrence{}, nil, false
	}

	var due []Occurrence
	// Consider today's and yesterday's occurrences so windows spanning
	// local midnight are still matched.
	for _, day := range []time.Time{now, now.AddDate(0, 0, -1)} {
		for _, occ := range occurrencesOn(s, day) {
			if !occ.Start.After(now) && now.Before(occ.End) {
				due = append(due, occ)
			}
		}
	}
	if len(due) == 0 {
		return Occurrence{}, nil, false
	}

	sort.Slice(due, func(i, j int) bool {
		if !due[i].Start.Equal(due[j].Start) {
			return due[i].Start.Before(due[j].Start)
		}
		return due[i].Set < due[j].Set
	})
	return due[0], due[1:], true
}

// Next returns the start of the next occurrence strictly after now.
func (m *Matcher) Next(s *Schedule, now time.Time) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}

	var (
		next  time.Time
		found bool
	)
	for _, set := range s.Sets {
		for _, w := range set.Windows {
			start, ok := nextStart(w, now)
			if !ok {
				continue
			}
			if !found || start.Before(next) {
				next = start
				found = true
			}
		}
	}
	return next, found
}

// nextStart computes the first daily occurrence of w starting strictly
// after now.
func nextStart(w Window, now time.Time) (time.Time, bool) {
	day := dateOf(now)
	if day.Before(w.StartDate) {
		day = w.StartDate
	}
	start := w.startOn(day)
	if !start.After(now) {
		day = day.AddDate(0, 0, 1)
		start = w.startOn(day)
	}
	if dateOf(day).After(w.EndDate) {
		return time.Time{}, false
	}
	return start, true
}

func occurrencesOn(s *Schedule, day time.Time) []Occurrence {
	var occs []Occurrence
	for _, set := range s.Sets {
		for _, w := range set.Windows {
			if !w.activeOn(day) {
				continue
			}
			start := w.startOn(day)
			occs = append(occs, Occurrence{
				Set:    set.Name,
				Dir:    set.Dir,
				Files:  set.ContentFiles,
				Window: w,
				Start:  start,
				End:    start.Add(w.Duration),
			})
		}
	}
	return occs
}
