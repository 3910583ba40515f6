package calendar

import (
	"errors"
	"fmt"
	"time"

	"channel-clock/internal/models"
)

// DateLayout is the key format used by holiday providers.
const DateLayout = "2006-01-02"

// DefaultHolidayIndicator is used for holidays with no entry in the region's label table.
const DefaultHolidayIndicator = "🗓️"

var (
	// ErrCalendarLookup marks a classification that fell back to the weekend rule
	// because the holiday provider failed.
	ErrCalendarLookup = errors.New("holiday calendar lookup failed")
	// ErrNotLoaded is returned by providers whose data has not been fetched yet.
	ErrNotLoaded = errors.New("holiday calendar not loaded")
)

// HolidayCalendar looks up the holiday name for a date in a region's calendar.
// The date is the calendar date of day in day's own location.
type HolidayCalendar interface {
	Lookup(day time.Time, code string) (name string, ok bool, err error)
}

// Policy classifies dates into day kinds and labels off days.
type Policy struct {
	cal HolidayCalendar
}

// NewPolicy creates a policy backed by cal. A nil cal means weekends only.
func NewPolicy(cal HolidayCalendar) *Policy {
	return &Policy{cal: cal}
}

// Classify returns the day kind of the region-local date of day.
// Holidays take precedence over the weekend rule. If the provider fails, the
// weekend-only classification is returned together with an error wrapping
// ErrCalendarLookup; the returned DayKind is valid in both cases.
func (p *Policy) Classify(day time.Time, r *models.Region) (models.DayKind, error) {
	local := r.Local(day)
	kind := models.DayKind{Type: models.Workday, Weekday: local.Weekday()}

	var lookupErr error
	if p.cal != nil {
		name, ok, err := p.cal.Lookup(local, r.CalendarCode)
		switch {
		case err != nil:
			lookupErr = fmt.Errorf("%w: region %s date %s: %v", ErrCalendarLookup, r.ID, local.Format(DateLayout), err)
		case ok:
			kind.Type = models.Holiday
			kind.HolidayName = name
			return kind, nil
		}
	}

	if kind.Weekday == time.Saturday || kind.Weekday == time.Sunday {
		kind.Type = models.Weekend
	}
	return kind, lookupErr
}

// LabelFor returns the text and indicator shown for an off day.
// Workdays have no calendar label and yield the zero DayLabel.
func (p *Policy) LabelFor(kind models.DayKind, r *models.Region) models.DayLabel {
	switch kind.Type {
	case models.Holiday:
		label := models.DayLabel{Text: kind.HolidayName, Indicator: r.DefaultHolidayIndicator}
		if label.Indicator == "" {
			label.Indicator = DefaultHolidayIndicator
		}
		if override, ok := r.HolidayLabels[kind.HolidayName]; ok {
			if override.Text != "" {
				label.Text = override.Text
			}
			if override.Indicator != "" {
				label.Indicator = override.Indicator
			}
		}
		return label
	case models.Weekend:
		if kind.Weekday == time.Saturday {
			return r.Saturday
		}
		return r.Sunday
	}
	return models.DayLabel{}
}

// Static is an in-memory holiday table keyed by calendar code and date.
type Static map[string]map[string]string

// Lookup implements HolidayCalendar.
func (s Static) Lookup(day time.Time, code string) (string, bool, error) {
	name, ok := s[code][day.Format(DateLayout)]
	return name, ok, nil
}

// Overlay consults primary first and falls through to fallback.
type Overlay struct {
	Primary  HolidayCalendar
	Fallback HolidayCalendar
}

// Lookup implements HolidayCalendar. A primary hit wins even when the
// fallback provider is failing; a primary error surfaces unless the fallback
// finds a holiday.
func (o Overlay) Lookup(day time.Time, code string) (string, bool, error) {
	var primaryErr error
	if o.Primary != nil {
		name, ok, err := o.Primary.Lookup(day, code)
		if err == nil && ok {
			return name, true, nil
		}
		primaryErr = err
	}
	if o.Fallback == nil {
		return "", false, primaryErr
	}
	name, ok, err := o.Fallback.Lookup(day, code)
	if ok {
		return name, true, nil
	}
	if err == nil {
		err = primaryErr
	}
	return "", false, err
}
