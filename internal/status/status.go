package status

import (
	"strings"
	"time"

	"channel-clock/internal/availability"
	"channel-clock/internal/calendar"
	"channel-clock/internal/models"
)

// Glyph substitutions for characters directories reject in channel names.
var sanitizer = strings.NewReplacer(
	":", "：", // U+FF1A fullwidth colon
	"|", "∥", // U+2225 parallel to
)

// Separator sits between the region emoji and the label text before sanitizing.
const Separator = "|"

// Resolver computes the status label of a region at an instant.
type Resolver struct {
	policy *calendar.Policy
}

func NewResolver(policy *calendar.Policy) *Resolver {
	return &Resolver{policy: policy}
}

// Resolve is a pure function of (region, instant, mode) given a fixed holiday
// calendar. A non-nil error wraps calendar.ErrCalendarLookup; the returned
// status is still usable and was computed with the weekend rule only.
func (r *Resolver) Resolve(region *models.Region, instant time.Time, mode models.OperatingMode) (models.ResolvedStatus, error) {
	if mode == models.ModeNight {
		return models.ResolvedStatus{
			Text:      region.RestingText,
			Indicator: region.NightIndicator,
			Mode:      models.ModeNight,
		}, nil
	}

	local := region.Local(instant)
	kind, err := r.policy.Classify(local, region)
	if kind.IsOff() {
		label := r.policy.LabelFor(kind, region)
		return models.ResolvedStatus{
			Text:      label.Text,
			Indicator: label.Indicator,
			Day:       kind,
			State:     availability.DayOff,
			Mode:      models.ModeNormal,
		}, err
	}

	state := region.Availability.Evaluate(local.Hour()*60 + local.Minute())
	return models.ResolvedStatus{
		Text:      local.Format("15:04"),
		Indicator: region.Indicators[state],
		Day:       kind,
		State:     state,
		Mode:      models.ModeNormal,
	}, err
}

// Label renders the final channel name for a resolved status.
func Label(region *models.Region, s models.ResolvedStatus) string {
	text := s.Text
	if s.Indicator != "" {
		text += " " + s.Indicator
	}
	return Sanitize(region.Emoji + Separator + text)
}

// Sanitize swaps characters the directories refuse for look-alikes.
func Sanitize(label string) string {
	return sanitizer.Replace(label)
}
