package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"channel-clock/internal/availability"
	"channel-clock/internal/models"
)

// Boundaries are the two wall-clock instants, in the reference timezone,
// at which the operating mode flips.
type Boundaries struct {
	NightStart int // minute of day
	DayStart   int
	Location   *time.Location
}

// NewBoundaries parses "HH:MM" night and day starts for loc.
func NewBoundaries(nightStart, dayStart string, loc *time.Location) (Boundaries, error) {
	night, err := availability.ParseClock(nightStart)
	if err != nil {
		return Boundaries{}, fmt.Errorf("night start: %w", err)
	}
	day, err := availability.ParseClock(dayStart)
	if err != nil {
		return Boundaries{}, fmt.Errorf("day start: %w", err)
	}
	if night == day || night >= availability.MinutesPerDay || day >= availability.MinutesPerDay {
		return Boundaries{}, fmt.Errorf("invalid night window %s-%s", nightStart, dayStart)
	}
	return Boundaries{NightStart: night, DayStart: day, Location: loc}, nil
}

// ModeAt returns the operating mode active at t. Night is [NightStart, DayStart),
// wrapping over midnight when NightStart > DayStart.
func (b Boundaries) ModeAt(t time.Time) models.OperatingMode {
	m := minuteOfDay(t.In(b.Location))
	var night bool
	if b.NightStart > b.DayStart {
		night = m >= b.NightStart || m < b.DayStart
	} else {
		night = m >= b.NightStart && m < b.DayStart
	}
	if night {
		return models.ModeNight
	}
	return models.ModeNormal
}

// IsBoundary reports whether t is exactly a mode boundary, to the nanosecond.
func (b Boundaries) IsBoundary(t time.Time) bool {
	l := t.In(b.Location)
	if l.Second() != 0 || l.Nanosecond() != 0 {
		return false
	}
	m := minuteOfDay(l)
	return m == b.NightStart || m == b.DayStart
}

// NextBoundary returns the first mode boundary strictly after t.
func (b Boundaries) NextBoundary(t time.Time) time.Time {
	night := b.NextNightStart(t)
	day := b.NextDayStart(t)
	if night.Before(day) {
		return night
	}
	return day
}

func (b Boundaries) NextNightStart(t time.Time) time.Time {
	return nextClock(t, b.NightStart, b.Location)
}

func (b Boundaries) NextDayStart(t time.Time) time.Time {
	return nextClock(t, b.DayStart, b.Location)
}

// Grid is the dispatch cadence inside the day window, aligned to the
// reference timezone's wall clock.
type Grid struct {
	sched cron.Schedule
}

// NewGrid builds a grid firing every minutes past the hour. minutes must divide 60.
func NewGrid(minutes int, loc *time.Location) (*Grid, error) {
	if minutes <= 0 || minutes > 60 || 60%minutes != 0 {
		return nil, fmt.Errorf("grid of %d minutes does not divide an hour", minutes)
	}
	spec := fmt.Sprintf("CRON_TZ=%s */%d * * * *", loc.String(), minutes)
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse grid %q: %w", spec, err)
	}
	return &Grid{sched: sched}, nil
}

// Next returns the first grid point strictly after t.
func (g *Grid) Next(t time.Time) time.Time {
	return g.sched.Next(t)
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// nextClock returns the next wall-clock minute-of-day occurrence after t in loc.
func nextClock(t time.Time, minute int, loc *time.Location) time.Time {
	l := t.In(loc)
	y, m, d := l.Date()
	c := time.Date(y, m, d, minute/60, minute%60, 0, 0, loc)
	if !c.After(t) {
		c = time.Date(y, m, d+1, minute/60, minute%60, 0, 0, loc)
	}
	return c
}

// nextMidnight returns the start of the next calendar day in loc.
func nextMidnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}
