package models

import (
	"time"

	"channel-clock/internal/availability"
)

// DayType is the tag of a DayKind.
type DayType int

const (
	Workday DayType = iota
	Weekend
	Holiday
)

func (t DayType) String() string {
	switch t {
	case Weekend:
		return "weekend"
	case Holiday:
		return "holiday"
	default:
		return "workday"
	}
}

// DayKind classifies a calendar date for one region.
type DayKind struct {
	Type        DayType      `json:"type"`
	Weekday     time.Weekday `json:"weekday"`
	HolidayName string       `json:"holiday_name,omitempty"`
}

// IsOff reports whether the day is a weekend or holiday.
func (d DayKind) IsOff() bool {
	return d.Type != Workday
}

// OperatingMode is the global day/night toggle.
type OperatingMode string

const (
	ModeNormal OperatingMode = "normal"
	ModeNight  OperatingMode = "night"
)

// DayLabel is a (text, indicator) pair shown for an off day.
type DayLabel struct {
	Text      string `json:"text" yaml:"text"`
	Indicator string `json:"indicator" yaml:"indicator"`
}

// Region is a tracked channel bound to a timezone and a holiday calendar.
// It is built once at startup and never mutated.
type Region struct {
	ID           string
	Name         string
	Timezone     string
	Location     *time.Location
	Emoji        string
	EntityID     string
	CalendarCode string

	RestingText    string
	NightIndicator string

	Saturday                DayLabel
	Sunday                  DayLabel
	HolidayLabels           map[string]DayLabel
	DefaultHolidayIndicator string

	Availability *availability.Table
	Indicators   map[availability.State]string
}

// Local converts t into the region's timezone.
func (r *Region) Local(t time.Time) time.Time {
	return t.In(r.Location)
}

// ResolvedStatus is the label computed for one region at one instant.
type ResolvedStatus struct {
	Text      string             `json:"text"`
	Indicator string             `json:"indicator"`
	Day       DayKind            `json:"day"`
	State     availability.State `json:"state"`
	Mode      OperatingMode      `json:"mode"`
}

// LabelEvent records one publication attempt for a region.
type LabelEvent struct {
	ID         int64     `json:"id" db:"id"`
	DispatchID string    `json:"dispatch_id" db:"dispatch_id"`
	RegionID   string    `json:"region_id" db:"region_id"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Label      string    `json:"label" db:"label"`
	Outcome    string    `json:"outcome" db:"outcome"`
	Error      string    `json:"error,omitempty" db:"error"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}
