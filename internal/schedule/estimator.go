package schedule

import (
	"time"

	"channel-clock/internal/calendar"
	"channel-clock/internal/models"
)

// FallbackDelay is used when no rule produces a usable instant.
const FallbackDelay = time.Hour

// Reason names the rule that produced an estimate.
type Reason string

const (
	ReasonBoundary Reason = "boundary"
	ReasonGrid     Reason = "grid"
	ReasonMidnight Reason = "midnight"
	ReasonDayStart Reason = "day_start"
	ReasonFallback Reason = "fallback"
)

// Estimate is the earliest instant at which any label may change.
// Due means now itself is a mode boundary and a dispatch is owed immediately;
// otherwise At is strictly after now.
type Estimate struct {
	At     time.Time
	Due    bool
	Reason Reason
}

// Estimator predicts the next label change across all tracked regions.
type Estimator struct {
	bounds  Boundaries
	grid    *Grid
	policy  *calendar.Policy
	regions []*models.Region
}

// NewEstimator creates an estimator. regions[0] is the reference region.
func NewEstimator(bounds Boundaries, grid *Grid, policy *calendar.Policy, regions []*models.Region) *Estimator {
	return &Estimator{bounds: bounds, grid: grid, policy: policy, regions: regions}
}

// Next is pure with respect to now and the holiday calendar. It never blocks.
func (e *Estimator) Next(now time.Time) Estimate {
	if e.bounds.IsBoundary(now) {
		return Estimate{At: now, Due: true, Reason: ReasonBoundary}
	}

	var est Estimate
	if e.bounds.ModeAt(now) == models.ModeNight {
		est = e.nextAtNight(now)
	} else {
		est = e.nextInDay(now)
	}

	if est.At.IsZero() || !est.At.After(now) {
		return Estimate{At: now.Add(FallbackDelay), Reason: ReasonFallback}
	}
	return est
}

func (e *Estimator) nextAtNight(now time.Time) Estimate {
	dayStart := e.bounds.NextDayStart(now)
	if len(e.regions) == 0 {
		return Estimate{At: dayStart, Reason: ReasonDayStart}
	}

	ref := e.regions[0]
	midnight := nextMidnight(now, ref.Location)
	if midnight.Before(dayStart) && e.flipsAt(ref, now, midnight) {
		return Estimate{At: midnight, Reason: ReasonMidnight}
	}
	return Estimate{At: dayStart, Reason: ReasonDayStart}
}

func (e *Estimator) nextInDay(now time.Time) Estimate {
	var earliest time.Time
	for _, r := range e.regions {
		kind, _ := e.policy.Classify(now, r)
		if !kind.IsOff() {
			return Estimate{At: e.grid.Next(now), Reason: ReasonGrid}
		}
		if m := nextMidnight(now, r.Location); earliest.IsZero() || m.Before(earliest) {
			earliest = m
		}
	}
	if earliest.IsZero() {
		return Estimate{}
	}
	// Resting labels replace the day-off labels at night start.
	if night := e.bounds.NextNightStart(now); night.Before(earliest) {
		return Estimate{At: night, Reason: ReasonBoundary}
	}
	return Estimate{At: earliest, Reason: ReasonMidnight}
}

// flipsAt reports whether r changes between off and work across midnight.
func (e *Estimator) flipsAt(r *models.Region, now, midnight time.Time) bool {
	today, _ := e.policy.Classify(now, r)
	tomorrow, _ := e.policy.Classify(midnight, r)
	return today.IsOff() != tomorrow.IsOff()
}
