package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

// observanceMarkers appear in the DESCRIPTION of calendar entries that are
// commemorated but are not days off (Google publishes both in one feed).
var observanceMarkers = []string{"observance", "기념일", "ngày kỷ niệm", "ngày lễ kỷ niệm"}

// Feed is an ICS holiday calendar for one calendar code.
type Feed struct {
	Code string
	URL  string
}

// FeedCache stores the last good ICS body per calendar code so a restart can
// serve holidays while the feed host is unreachable.
type FeedCache interface {
	GetFeed(ctx context.Context, code string) ([]byte, error)
	SetFeed(ctx context.Context, code string, body []byte) error
}

// Feeds periodically fetches ICS holiday calendars and serves lookups from memory.
type Feeds struct {
	client   *http.Client
	feeds    []Feed
	cache    FeedCache
	interval time.Duration

	mu   sync.RWMutex
	days map[string]map[string]string // code -> date -> holiday name
}

// NewFeeds creates a feed set refreshed every intervalSec. cache may be nil.
func NewFeeds(feeds []Feed, cache FeedCache, intervalSec int) *Feeds {
	return &Feeds{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		feeds:    feeds,
		cache:    cache,
		interval: time.Duration(intervalSec) * time.Second,
		days:     make(map[string]map[string]string),
	}
}

// Refresh fetches every feed once. Failures are logged per feed.
func (f *Feeds) Refresh(ctx context.Context) {
	for _, feed := range f.feeds {
		if err := f.fetchFeed(ctx, feed); err != nil {
			log.Printf("[calendar] failed to refresh %s: %v", feed.Code, err)
		}
	}
}

// Start refreshes every interval until ctx is cancelled. Call Refresh first
// for an initial load.
func (f *Feeds) Start(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Refresh(ctx)
		}
	}
}

// Lookup implements HolidayCalendar. Codes with no configured feed have no
// holidays; configured codes that never loaded return ErrNotLoaded.
func (f *Feeds) Lookup(day time.Time, code string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	days, ok := f.days[code]
	if !ok {
		if f.hasFeed(code) {
			return "", false, fmt.Errorf("%w: %s", ErrNotLoaded, code)
		}
		return "", false, nil
	}
	name, ok := days[day.Format(DateLayout)]
	return name, ok, nil
}

func (f *Feeds) hasFeed(code string) bool {
	for _, feed := range f.feeds {
		if feed.Code == code {
			return true
		}
	}
	return false
}

func (f *Feeds) fetchFeed(ctx context.Context, feed Feed) error {
	body, fetchErr := f.download(ctx, feed.URL)
	fromCache := false
	if fetchErr != nil {
		if f.cache == nil {
			return fetchErr
		}
		cached, err := f.cache.GetFeed(ctx, feed.Code)
		if err != nil || len(cached) == 0 {
			return fetchErr
		}
		log.Printf("[calendar] %s: fetch failed (%v), using cached feed", feed.Code, fetchErr)
		body, fromCache = cached, true
	}

	now := time.Now().UTC()
	days, err := ParseFeed(body, now.AddDate(-1, 0, 0), now.AddDate(2, 0, 0))
	if err != nil {
		return fmt.Errorf("parse %s: %w", feed.Code, err)
	}

	f.mu.Lock()
	f.days[feed.Code] = days
	f.mu.Unlock()

	if !fromCache && f.cache != nil {
		if err := f.cache.SetFeed(ctx, feed.Code, body); err != nil {
			log.Printf("[calendar] %s: failed to cache feed: %v", feed.Code, err)
		}
	}
	log.Printf("[calendar] loaded %s: %d holiday dates (cached=%v)", feed.Code, len(days), fromCache)
	return nil
}

func (f *Feeds) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", redactURL(url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", redactURL(url), resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ParseFeed reads an ICS body into a date -> holiday name table covering
// [from, to]. Observances are skipped. Multi-day events mark every day they span; RRULE events are
// expanded inside the range.
func ParseFeed(body []byte, from, to time.Time) (map[string]string, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	days := make(map[string]string)
	for _, ev := range cal.Events() {
		summary := ""
		if p := ev.GetProperty(ical.ComponentPropertySummary); p != nil {
			summary = strings.TrimSpace(p.Value)
		}
		startProp := ev.GetProperty(ical.ComponentPropertyDtStart)
		if summary == "" || startProp == nil || isObservance(ev) {
			continue
		}
		start, err := parseDate(startProp.Value)
		if err != nil {
			log.Printf("[calendar] skipping %q: %v", summary, err)
			continue
		}
		span := 1
		if endProp := ev.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
			if end, err := parseDate(endProp.Value); err == nil {
				if n := int(end.Sub(start).Hours() / 24); n > 1 {
					span = n
				}
			}
		}

		starts := []time.Time{start}
		if rp := ev.GetProperty(ical.ComponentPropertyRrule); rp != nil && rp.Value != "" {
			r, err := rrule.StrToRRule(rp.Value)
			if err != nil {
				log.Printf("[calendar] skipping %q: bad RRULE %q: %v", summary, rp.Value, err)
				continue
			}
			r.DTStart(start)
			starts = r.Between(from, to, true)
		}

		for _, s := range starts {
			for i := 0; i < span; i++ {
				key := s.AddDate(0, 0, i).Format(DateLayout)
				if _, taken := days[key]; !taken {
					days[key] = summary
				}
			}
		}
	}
	return days, nil
}

func isObservance(ev *ical.VEvent) bool {
	p := ev.GetProperty(ical.ComponentPropertyDescription)
	if p == nil {
		return false
	}
	desc := strings.ToLower(p.Value)
	for _, m := range observanceMarkers {
		if strings.Contains(desc, m) {
			return true
		}
	}
	return false
}

// parseDate takes the calendar date of an ICS DATE or DATE-TIME value.
// Holidays are floating dates, so the time part and zone are ignored.
func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) < 8 {
		return time.Time{}, fmt.Errorf("invalid ICS date %q", v)
	}
	return time.ParseInLocation("20060102", v[:8], time.UTC)
}

// redactURL keeps only scheme and host; private ICS URLs embed tokens in the path.
func redactURL(u string) string {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return "ics://...(redacted)"
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host + "/...(redacted)"
}
