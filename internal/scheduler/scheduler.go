package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"channel-clock/internal/directory"
	"channel-clock/internal/metrics"
	"channel-clock/internal/models"
	"channel-clock/internal/mq"
	"channel-clock/internal/schedule"
	"channel-clock/internal/status"
)

const (
	// maxSleep caps a single timer so wall-clock jumps are noticed.
	maxSleep = 5 * time.Minute
	// recordTimeout bounds a history write.
	recordTimeout = 5 * time.Second
)

// Clock abstracts time for the loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Recorder persists publish attempts.
type Recorder interface {
	RecordLabelEvent(ctx context.Context, e *models.LabelEvent) error
}

// Notifier broadcasts label changes.
type Notifier interface {
	NotifyLabelChange(ctx context.Context, msg mq.LabelChangeMsg)
	NotifyDispatch(ctx context.Context, msg mq.DispatchSummaryMsg)
}

// State is owned by the scheduling goroutine and threaded through dispatches.
type State struct {
	Mode      models.OperatingMode
	Published map[string]string // region id -> last label known on the directory
}

// Scheduler drives resolve-and-publish on the dispatch grid and at mode boundaries.
type Scheduler struct {
	regions   []*models.Region
	resolver  *status.Resolver
	estimator *schedule.Estimator
	bounds    schedule.Boundaries
	publisher *directory.Publisher
	metrics   *metrics.Metrics

	clock    Clock
	grace    time.Duration
	maxSleep time.Duration
	recorder Recorder
	notifier Notifier

	state State

	mu       sync.RWMutex
	snapshot *Snapshot
}

func New(regions []*models.Region, resolver *status.Resolver, estimator *schedule.Estimator, bounds schedule.Boundaries, publisher *directory.Publisher, m *metrics.Metrics, graceSec int) *Scheduler {
	return &Scheduler{
		regions:   regions,
		resolver:  resolver,
		estimator: estimator,
		bounds:    bounds,
		publisher: publisher,
		metrics:   m,
		clock:     realClock{},
		grace:     time.Duration(graceSec) * time.Second,
		maxSleep:  maxSleep,
		state:     State{Mode: models.ModeNormal, Published: make(map[string]string)},
	}
}

// SetClock replaces the wall clock (tests).
func (s *Scheduler) SetClock(c Clock) {
	s.clock = c
}

// SetRecorder enables label history.
func (s *Scheduler) SetRecorder(r Recorder) {
	s.recorder = r
}

// SetNotifier enables label change events.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// Start dispatches immediately and then at every estimated change until ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	evalAt := s.clock.Now()
	s.state.Mode = s.bounds.ModeAt(evalAt)
	log.Printf("[scheduler] started in %s mode for %d regions", s.state.Mode, len(s.regions))

	for {
		next := s.dispatch(ctx, evalAt)

		woke, ok := s.sleepUntil(ctx, next)
		if !ok {
			log.Println("[scheduler] stopped")
			return nil
		}
		evalAt = s.evaluationInstant(next, woke)
	}
}

// RunOnce evaluates and publishes every region once at the current time.
func (s *Scheduler) RunOnce(ctx context.Context) *Snapshot {
	now := s.clock.Now()
	s.state.Mode = s.bounds.ModeAt(now)
	s.dispatch(ctx, now)
	return s.Snapshot()
}

// Snapshot returns the result of the latest dispatch, or nil before the first.
// The returned value is never modified.
func (s *Scheduler) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Regions returns the tracked regions, reference first.
func (s *Scheduler) Regions() []*models.Region {
	return s.regions
}

func (s *Scheduler) sleepUntil(ctx context.Context, t time.Time) (time.Time, bool) {
	for {
		if ctx.Err() != nil {
			return time.Time{}, false
		}
		now := s.clock.Now()
		wait := t.Sub(now)
		if wait <= 0 {
			return now, true
		}
		if wait > s.maxSleep {
			wait = s.maxSleep
		}
		select {
		case <-ctx.Done():
			return time.Time{}, false
		case <-s.clock.After(wait):
		}
	}
}

// evaluationInstant keeps on-time wake-ups on their scheduled instant and
// coalesces late ones into a single run at the actual time.
func (s *Scheduler) evaluationInstant(scheduled, woke time.Time) time.Time {
	late := woke.Sub(scheduled)
	if late <= s.grace {
		return scheduled
	}
	s.metrics.LateWakeups.Inc()
	log.Printf("[scheduler] woke %s late for %s, running once at %s",
		late.Round(time.Second), scheduled.Format(time.RFC3339), woke.Format(time.RFC3339))
	return woke
}

// dispatch resolves and publishes every region as of at, and returns the
// next wake-up instant.
func (s *Scheduler) dispatch(ctx context.Context, at time.Time) time.Time {
	start := time.Now()
	dispatchID := uuid.NewString()

	mode := s.bounds.ModeAt(at)
	if mode != s.state.Mode {
		log.Printf("[scheduler] mode %s -> %s at %s", s.state.Mode, mode, at.Format(time.RFC3339))
		s.state.Mode = mode
	}

	snap := &Snapshot{
		DispatchID:  dispatchID,
		EvaluatedAt: at,
		Mode:        mode,
		Regions:     make([]RegionStatus, 0, len(s.regions)),
	}
	outcomes := make(map[string]int)

	for _, r := range s.regions {
		if ctx.Err() != nil {
			log.Printf("[scheduler] shutting down, skipping remaining regions of dispatch %s", dispatchID)
			break
		}

		st, err := s.resolver.Resolve(r, at, mode)
		if err != nil {
			s.metrics.CalendarDegraded.WithLabelValues(r.ID).Inc()
			log.Printf("[scheduler] %s: %v (weekend rule only)", r.ID, err)
		}
		label := status.Label(r, st)
		previous := s.state.Published[r.ID]

		res := s.publisher.Publish(ctx, s.state.Published, r, label)
		outcomes[res.Outcome.String()]++
		s.metrics.ObservePublish(r.ID, res.Outcome.String())
		logResult(r, res)

		if res.Outcome != directory.Unchanged {
			s.record(ctx, dispatchID, r, res, at)
		}
		if res.Outcome == directory.Written && s.notifier != nil {
			s.notifier.NotifyLabelChange(ctx, mq.LabelChangeMsg{
				DispatchID: dispatchID,
				RegionID:   r.ID,
				EntityID:   r.EntityID,
				Label:      label,
				Previous:   previous,
				Mode:       string(mode),
				When:       at,
			})
		}

		rs := RegionStatus{
			RegionID: r.ID,
			Name:     r.Name,
			Label:    label,
			Status:   st,
			Outcome:  res.Outcome.String(),
		}
		if res.Err != nil {
			rs.Error = res.Err.Error()
		}
		snap.Regions = append(snap.Regions, rs)
	}

	est := s.estimator.Next(at)
	if est.Due {
		// at itself was the boundary and has just been handled.
		est = s.estimator.Next(at.Add(time.Nanosecond))
	}
	if est.Reason == schedule.ReasonFallback {
		s.metrics.Fallbacks.Inc()
		log.Printf("[scheduler] no rule matched after %s, retrying in %s", at.Format(time.RFC3339), schedule.FallbackDelay)
	}
	next, reason := est.At, est.Reason
	if boundary := s.bounds.NextBoundary(at); boundary.Before(next) {
		next, reason = boundary, schedule.ReasonBoundary
	}
	snap.NextWakeAt = next
	snap.NextReason = string(reason)
	snap.Outcomes = outcomes

	if n := outcomes[directory.Written.String()]; n > 0 {
		log.Printf("[scheduler] dispatch %s at %s: updated %d channels, next at %s (%s)",
			dispatchID, at.Format(time.RFC3339), n, next.Format(time.RFC3339), reason)
	} else {
		log.Printf("[scheduler] dispatch %s at %s: no channel needed an update, next at %s (%s)",
			dispatchID, at.Format(time.RFC3339), next.Format(time.RFC3339), reason)
	}
	if s.notifier != nil {
		s.notifier.NotifyDispatch(ctx, mq.DispatchSummaryMsg{
			DispatchID:  dispatchID,
			EvaluatedAt: at,
			Mode:        string(mode),
			Outcomes:    outcomes,
			NextWakeAt:  next,
		})
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	s.metrics.ObserveDispatch(start)
	s.metrics.SetMode(mode == models.ModeNight)
	s.metrics.SetNextWake(next)
	return next
}

func (s *Scheduler) record(ctx context.Context, dispatchID string, r *models.Region, res directory.Result, at time.Time) {
	if s.recorder == nil {
		return
	}
	e := &models.LabelEvent{
		DispatchID: dispatchID,
		RegionID:   r.ID,
		EntityID:   r.EntityID,
		Label:      res.Label,
		Outcome:    res.Outcome.String(),
		Timestamp:  at,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.recorder.RecordLabelEvent(ctx, e); err != nil {
		log.Printf("[scheduler] failed to record label event for %s: %v", r.ID, err)
	}
}

func logResult(r *models.Region, res directory.Result) {
	switch res.Outcome {
	case directory.Written:
		log.Printf("[publish] %s: renamed %s to %q", r.ID, r.EntityID, res.Label)
	case directory.Forbidden:
		log.Printf("[publish] %s: no permission to rename %s: %v", r.ID, r.EntityID, res.Err)
	case directory.NotFound:
		log.Printf("[publish] %s: entity %s not found: %v", r.ID, r.EntityID, res.Err)
	case directory.Transient:
		log.Printf("[publish] %s: rename of %s failed: %v", r.ID, r.EntityID, res.Err)
	}
}
