package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"channel-clock/internal/calendar"
	"channel-clock/internal/config"
	"channel-clock/internal/directory"
	"channel-clock/internal/directory/mocks"
	"channel-clock/internal/metrics"
	"channel-clock/internal/models"
	"channel-clock/internal/mq"
	"channel-clock/internal/schedule"
	"channel-clock/internal/status"
)

var seoulTZ = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		panic(err)
	}
	return loc
}()

func kst(value string) time.Time {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", value, seoulTZ)
	if err != nil {
		panic(err)
	}
	return ts
}

// fakeClock advances only when the scheduler sleeps. Once now reaches stopAt
// it cancels the run and returns a channel that never fires.
type fakeClock struct {
	now    time.Time
	lags   []time.Duration
	stopAt time.Time
	cancel context.CancelFunc
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if len(c.lags) > 0 {
		c.now = c.now.Add(c.lags[0])
		c.lags = c.lags[1:]
	}
	if !c.stopAt.IsZero() && !c.now.Before(c.stopAt) {
		c.cancel()
		return nil
	}
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

type rename struct {
	entityID string
	label    string
}

// fakeDirectory keeps labels in memory.
type fakeDirectory struct {
	mu       sync.Mutex
	labels   map[string]string
	renames  []rename
	onRename func()
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{labels: make(map[string]string)}
}

func (d *fakeDirectory) Label(_ context.Context, entityID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.labels[entityID], nil
}

func (d *fakeDirectory) Rename(_ context.Context, entityID, label string) error {
	d.mu.Lock()
	d.labels[entityID] = label
	d.renames = append(d.renames, rename{entityID, label})
	hook := d.onRename
	d.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (d *fakeDirectory) labelsFor(entityID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, r := range d.renames {
		if r.entityID == entityID {
			out = append(out, r.label)
		}
	}
	return out
}

func testRegions(t *testing.T) []*models.Region {
	t.Helper()
	var regions []*models.Region
	for i, spec := range config.DefaultRegions().Regions {
		spec.EntityID = fmt.Sprintf("-100%d", i+1)
		r, err := config.BuildRegion(spec)
		require.NoError(t, err)
		regions = append(regions, r)
	}
	return regions
}

func newTestScheduler(t *testing.T, dir directory.Directory, cal calendar.HolidayCalendar) (*Scheduler, *metrics.Metrics) {
	t.Helper()
	regions := testRegions(t)
	bounds, err := schedule.NewBoundaries("22:00", "07:00", seoulTZ)
	require.NoError(t, err)
	grid, err := schedule.NewGrid(10, seoulTZ)
	require.NoError(t, err)

	policy := calendar.NewPolicy(cal)
	m := metrics.New()
	s := New(regions,
		status.NewResolver(policy),
		schedule.NewEstimator(bounds, grid, policy, regions),
		bounds,
		directory.NewPublisher(dir, 5),
		m,
		30,
	)
	s.maxSleep = 24 * time.Hour
	return s, m
}

func TestScheduler_NightTransition(t *testing.T) {
	dir := newFakeDirectory()
	s, m := newTestScheduler(t, dir, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &fakeClock{now: kst("2025-06-02 21:55:00"), stopAt: kst("2025-06-03 07:05:00"), cancel: cancel}
	s.SetClock(clock)

	require.NoError(t, s.Start(ctx))

	assert.Equal(t, []string{"🇰🇷∥21：55 🏠", "🇰🇷∥휴식 🌙", "🇰🇷∥07：00 🏠"}, dir.labelsFor("-1001"))
	assert.Equal(t, []string{"🇻🇳∥19：55 🏠", "🇻🇳∥Nghỉ 🌙", "🇻🇳∥05：00 🏠"}, dir.labelsFor("-1002"))
	assert.Equal(t, []time.Duration{5 * time.Minute, 9 * time.Hour, 10 * time.Minute}, clock.sleeps)

	snap := s.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, models.ModeNormal, snap.Mode)
	assert.True(t, kst("2025-06-03 07:00:00").Equal(snap.EvaluatedAt))
	assert.True(t, kst("2025-06-03 07:10:00").Equal(snap.NextWakeAt))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Dispatches))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LateWakeups))
}

func TestScheduler_GraceAndLateWakeups(t *testing.T) {
	dir := newFakeDirectory()
	s, m := newTestScheduler(t, dir, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.SetClock(&fakeClock{
		now:    kst("2025-06-02 10:03:00"),
		lags:   []time.Duration{10 * time.Second, 2 * time.Minute},
		stopAt: kst("2025-06-02 10:25:00"),
		cancel: cancel,
	})

	require.NoError(t, s.Start(ctx))

	// 10s late is within grace and evaluates at 10:10; 2m late runs once at 10:22.
	assert.Equal(t, []string{"🇰🇷∥10：03 💼", "🇰🇷∥10：10 💼", "🇰🇷∥10：22 💼"}, dir.labelsFor("-1001"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LateWakeups))
}

func TestScheduler_OverrunCoalesces(t *testing.T) {
	dir := newFakeDirectory()
	s, m := newTestScheduler(t, dir, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &fakeClock{now: kst("2025-06-02 10:03:00"), stopAt: kst("2025-06-02 10:35:00"), cancel: cancel}
	s.SetClock(clock)

	slow := 2
	dir.onRename = func() {
		if slow > 0 {
			slow--
			clock.now = clock.now.Add(15 * time.Minute)
		}
	}

	require.NoError(t, s.Start(ctx))

	// The 10:10, 10:20 and 10:30 slots collapse into one run at 10:33.
	assert.Equal(t, []string{"🇰🇷∥10：03 💼", "🇰🇷∥10：33 💼"}, dir.labelsFor("-1001"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Dispatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LateWakeups))
}

func TestScheduler_StartWithCancelledContext(t *testing.T) {
	dir := newFakeDirectory()
	s, _ := newTestScheduler(t, dir, nil)
	s.SetClock(&fakeClock{now: kst("2025-06-02 10:00:00")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Start(ctx))
	assert.Empty(t, dir.renames)
}

func TestScheduler_RunOnceIsolatesFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)

	dir.EXPECT().Label(gomock.Any(), "-1001").Return("old", nil).Times(2)
	dir.EXPECT().Rename(gomock.Any(), "-1001", "🇰🇷∥10：00 💼").
		Return(fmt.Errorf("%w: kicked", directory.ErrForbidden)).Times(2)
	dir.EXPECT().Label(gomock.Any(), "-1002").Return("old", nil).Times(1)
	dir.EXPECT().Rename(gomock.Any(), "-1002", "🇻🇳∥08：00 🏠").Return(nil).Times(1)

	s, m := newTestScheduler(t, dir, nil)
	s.SetClock(&fakeClock{now: kst("2025-06-02 10:00:00")})

	snap := s.RunOnce(context.Background())
	require.Len(t, snap.Regions, 2)
	assert.Equal(t, "forbidden", snap.Regions[0].Outcome)
	assert.Contains(t, snap.Regions[0].Error, "kicked")
	assert.Equal(t, "written", snap.Regions[1].Outcome)
	assert.Equal(t, string(schedule.ReasonGrid), snap.NextReason)
	assert.True(t, kst("2025-06-02 10:10:00").Equal(snap.NextWakeAt))

	// The failed region is retried on the next dispatch, the written one is cached.
	snap = s.RunOnce(context.Background())
	assert.Equal(t, "forbidden", snap.Regions[0].Outcome)
	assert.Equal(t, "unchanged", snap.Regions[1].Outcome)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PublishOutcomes.WithLabelValues("SEOUL", "forbidden")))
}

func TestScheduler_PerRegionHolidays(t *testing.T) {
	dir := newFakeDirectory()
	s, _ := newTestScheduler(t, dir, calendar.Static{"KR": {"2025-06-06": "현충일"}})
	s.SetClock(&fakeClock{now: kst("2025-06-06 10:00:00")})

	snap := s.RunOnce(context.Background())
	require.Len(t, snap.Regions, 2)
	assert.Equal(t, "🇰🇷∥현충일 🇰🇷", snap.Regions[0].Label)
	assert.Equal(t, models.Holiday, snap.Regions[0].Status.Day.Type)
	assert.Equal(t, "🇻🇳∥08：00 🏠", snap.Regions[1].Label)
	assert.Equal(t, models.Workday, snap.Regions[1].Status.Day.Type)
}

type failingCalendar struct{}

func (failingCalendar) Lookup(time.Time, string) (string, bool, error) {
	return "", false, errors.New("feed down")
}

func TestScheduler_CalendarFailureDegrades(t *testing.T) {
	dir := newFakeDirectory()
	s, m := newTestScheduler(t, dir, failingCalendar{})
	s.SetClock(&fakeClock{now: kst("2025-06-07 11:00:00")})

	snap := s.RunOnce(context.Background())
	assert.Equal(t, "🇰🇷∥토요일 🌤️", snap.Regions[0].Label)
	assert.Equal(t, "written", snap.Regions[0].Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CalendarDegraded.WithLabelValues("SEOUL")))
}

type memoryRecorder struct {
	events []*models.LabelEvent
}

func (r *memoryRecorder) RecordLabelEvent(_ context.Context, e *models.LabelEvent) error {
	r.events = append(r.events, e)
	return nil
}

type memoryNotifier struct {
	changes   []mq.LabelChangeMsg
	summaries []mq.DispatchSummaryMsg
}

func (n *memoryNotifier) NotifyLabelChange(_ context.Context, msg mq.LabelChangeMsg) {
	n.changes = append(n.changes, msg)
}

func (n *memoryNotifier) NotifyDispatch(_ context.Context, msg mq.DispatchSummaryMsg) {
	n.summaries = append(n.summaries, msg)
}

func TestScheduler_RecordsAndNotifiesChanges(t *testing.T) {
	dir := newFakeDirectory()
	dir.labels["-1001"] = "🇰🇷∥09：50 🏠"
	s, _ := newTestScheduler(t, dir, nil)
	clock := &fakeClock{now: kst("2025-06-02 10:00:00")}
	s.SetClock(clock)

	rec := &memoryRecorder{}
	notifier := &memoryNotifier{}
	s.SetRecorder(rec)
	s.SetNotifier(notifier)

	s.RunOnce(context.Background())

	require.Len(t, rec.events, 2)
	_, err := uuid.Parse(rec.events[0].DispatchID)
	require.NoError(t, err)
	assert.Equal(t, rec.events[0].DispatchID, rec.events[1].DispatchID)
	assert.Equal(t, "SEOUL", rec.events[0].RegionID)
	assert.Equal(t, "written", rec.events[0].Outcome)

	require.Len(t, notifier.changes, 2)
	assert.Equal(t, "🇰🇷∥10：00 💼", notifier.changes[0].Label)
	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, 2, notifier.summaries[0].Outcomes["written"])

	// Same minute again: nothing changes, nothing is recorded.
	s.RunOnce(context.Background())
	assert.Len(t, rec.events, 2)
	assert.Len(t, notifier.changes, 2)
	assert.Len(t, notifier.summaries, 2)
	assert.Equal(t, 2, notifier.summaries[1].Outcomes["unchanged"])
}

func TestScheduler_SnapshotBeforeFirstDispatch(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeDirectory(), nil)
	assert.Nil(t, s.Snapshot())
	assert.Len(t, s.Regions(), 2)
}
