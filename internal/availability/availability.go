package availability

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MinutesPerDay is the size of the minute-of-day domain every table must cover.
const MinutesPerDay = 24 * 60

// State is the intraday work-status classification of a region.
type State string

const (
	Working  State = "working"
	Lunch    State = "lunch"
	OffHours State = "off_hours"
	DayOff   State = "day_off"
)

// DefaultIndicators are the presentation emoji for each state.
var DefaultIndicators = map[State]string{
	Working:  "💼",
	Lunch:    "🍜",
	OffHours: "🏠",
}

// ErrInvalidTable is returned when a window table does not partition the day.
var ErrInvalidTable = errors.New("invalid availability table")

// Window is a half-open [Start, End) range of minutes since midnight.
type Window struct {
	Start int
	End   int
	State State
}

// Contains reports whether minute falls inside the window.
func (w Window) Contains(minute int) bool {
	return minute >= w.Start && minute < w.End
}

func (w Window) String() string {
	return fmt.Sprintf("%s-%s %s", FormatClock(w.Start), FormatClock(w.End), w.State)
}

// Table is a validated, ordered list of windows covering all 1440 minutes.
type Table struct {
	windows []Window
}

// NewTable validates that windows cover [0, 1440) with no gap or overlap.
// Windows are sorted by start; the input slice is not modified.
func NewTable(windows []Window) (*Table, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no windows", ErrInvalidTable)
	}
	sorted := sortedCopy(windows)

	next := 0
	for _, w := range sorted {
		if err := checkWindow(w); err != nil {
			return nil, err
		}
		switch {
		case w.Start > next:
			return nil, fmt.Errorf("%w: gap %s-%s", ErrInvalidTable, FormatClock(next), FormatClock(w.Start))
		case w.Start < next:
			return nil, fmt.Errorf("%w: window %s overlaps previous window ending %s", ErrInvalidTable, w, FormatClock(next))
		}
		next = w.End
	}
	if next != MinutesPerDay {
		return nil, fmt.Errorf("%w: gap %s-24:00", ErrInvalidTable, FormatClock(next))
	}
	return &Table{windows: sorted}, nil
}

// Fill returns windows plus OffHours windows for every uncovered minute range.
// Overlapping input windows are left in place so NewTable reports them.
func Fill(windows []Window) []Window {
	sorted := sortedCopy(windows)
	out := make([]Window, 0, len(sorted)*2+1)

	next := 0
	for _, w := range sorted {
		if w.Start > next {
			out = append(out, Window{Start: next, End: w.Start, State: OffHours})
		}
		out = append(out, w)
		if w.End > next {
			next = w.End
		}
	}
	if next < MinutesPerDay {
		out = append(out, Window{Start: next, End: MinutesPerDay, State: OffHours})
	}
	return out
}

// Evaluate returns the state of the window containing minute.
// Minutes outside [0, 1440) are wrapped into the day.
func (t *Table) Evaluate(minute int) State {
	minute %= MinutesPerDay
	if minute < 0 {
		minute += MinutesPerDay
	}
	for _, w := range t.windows {
		if w.Contains(minute) {
			return w.State
		}
	}
	// Unreachable for a validated table.
	return OffHours
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is accepted
// as the end of the day.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if h == 24 && m == 0 {
		return MinutesPerDay, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q: out of range", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as zero-padded HH:MM.
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// ParseState maps a configuration name onto a State.
func ParseState(s string) (State, error) {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case Working, "work":
		return Working, nil
	case Lunch:
		return Lunch, nil
	case OffHours, "off":
		return OffHours, nil
	}
	return "", fmt.Errorf("unknown availability state %q", s)
}

func checkWindow(w Window) error {
	if w.Start < 0 || w.End > MinutesPerDay || w.Start >= w.End {
		return fmt.Errorf("%w: window %d-%d is empty or out of range", ErrInvalidTable, w.Start, w.End)
	}
	switch w.State {
	case Working, Lunch, OffHours:
		return nil
	}
	return fmt.Errorf("%w: window %s has unsupported state", ErrInvalidTable, w)
}

func sortedCopy(windows []Window) []Window {
	sorted := append([]Window(nil), windows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	return sorted
}
