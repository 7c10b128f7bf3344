package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/chmouel/nextmeetingd/internal/cache"
	"github.com/chmouel/nextmeetingd/internal/event"
	"github.com/chmouel/nextmeetingd/internal/metrics"
	"github.com/chmouel/nextmeetingd/internal/notify"
	"github.com/chmouel/nextmeetingd/internal/provider"
)

// flakyProvider serves fixed events and can be flipped into failure.
type flakyProvider struct {
	mu     sync.Mutex
	name   string
	events []event.Meeting
	err    error
	calls  int
}

func (p *flakyProvider) Name() string { return p.name }

func (p *flakyProvider) FetchEvents(ctx context.Context, from, to time.Time) ([]event.Meeting, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.events, nil
}

func (p *flakyProvider) Status() provider.Status {
	return provider.Status{Authenticated: true}
}

func (p *flakyProvider) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

type nullSink struct{}

func (nullSink) Notify(notify.Notification) {}

func testScheduler(t *testing.T, providers ...provider.Provider) (*Scheduler, *cache.Cache) {
	t.Helper()
	return testSchedulerTTL(t, 5*time.Minute, providers...)
}

func testSchedulerTTL(t *testing.T, ttl time.Duration, providers ...provider.Provider) (*Scheduler, *cache.Cache) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := cache.New(ttl, logger)
	reg := provider.NewRegistryFrom(providers...)
	n := notify.NewEngine(notify.Config{}, nullSink{}, nil, logger)
	s := New(c, reg, n, metrics.New(), 5*time.Minute, ttl, time.Second, logger)
	return s, c
}

func TestRefreshPopulatesCache(t *testing.T) {
	now := time.Now()
	p := &flakyProvider{name: "work", events: []event.Meeting{
		{ID: "1", Title: "Standup", Start: now.Add(time.Hour), End: now.Add(90 * time.Minute)},
	}}
	s, _ := testScheduler(t, p)

	s.RefreshNow(context.Background())

	meetings, stale := s.Meetings()
	if len(meetings) != 1 || meetings[0].ID != "1" {
		t.Fatalf("meetings = %+v", meetings)
	}
	if stale {
		t.Error("fresh fetch reported stale")
	}

	lastSync, _, reports := s.Report()
	if lastSync.IsZero() {
		t.Error("last sync not recorded")
	}
	if len(reports) != 1 || !reports[0].Healthy || reports[0].EventCount != 1 {
		t.Errorf("report = %+v", reports)
	}
}

func TestFailedFetchKeepsPreviousEntry(t *testing.T) {
	now := time.Now()
	p := &flakyProvider{name: "work", events: []event.Meeting{
		{ID: "1", Title: "Standup", Start: now.Add(time.Hour), End: now.Add(90 * time.Minute)},
	}}
	s, _ := testScheduler(t, p)

	s.RefreshNow(context.Background())
	p.fail(errors.New("upstream 500"))
	s.RefreshNow(context.Background())

	// The earlier result still serves; the failure only shows in status.
	meetings, _ := s.Meetings()
	if len(meetings) != 1 {
		t.Fatalf("meetings after failure = %d, want 1", len(meetings))
	}
	_, _, reports := s.Report()
	if reports[0].Healthy {
		t.Error("failed provider reported healthy")
	}
	if reports[0].Error == "" {
		t.Error("failure not surfaced in report")
	}
}

func TestStaleEntrySurvivesFailedRefresh(t *testing.T) {
	now := time.Now()
	p := &flakyProvider{name: "work", events: []event.Meeting{
		{ID: "1", Title: "Standup", Start: now.Add(time.Hour), End: now.Add(90 * time.Minute)},
	}}
	s, _ := testSchedulerTTL(t, 50*time.Millisecond, p)

	s.RefreshNow(context.Background())

	// Outage outlasting the TTL: the entry goes stale, the next tick
	// fails, and the stale data must still serve.
	time.Sleep(60 * time.Millisecond)
	p.fail(errors.New("upstream outage"))
	s.RefreshNow(context.Background())

	meetings, stale := s.Meetings()
	if len(meetings) != 1 || meetings[0].ID != "1" {
		t.Fatalf("stale data lost on provider outage: meetings = %+v", meetings)
	}
	if !stale {
		t.Error("expired entry not flagged stale")
	}
}

func TestFetchWindowShiftRetiresOldEntry(t *testing.T) {
	clock := time.Date(2026, 8, 28, 10, 59, 0, 0, time.UTC)
	p := &flakyProvider{name: "work", events: []event.Meeting{
		{ID: "1", Title: "Standup", Start: clock.Add(2 * time.Hour), End: clock.Add(3 * time.Hour)},
	}}
	s, c := testScheduler(t, p)
	s.now = func() time.Time { return clock }

	// Refreshes either side of an hour boundary land under different
	// cache keys; the old entry must be retired, not merged.
	s.RefreshNow(context.Background())
	clock = clock.Add(2 * time.Minute)
	s.RefreshNow(context.Background())

	meetings, _ := s.Meetings()
	if len(meetings) != 1 || meetings[0].ID != "1" {
		t.Fatalf("meetings = %+v, want exactly one", meetings)
	}
	if c.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", c.Len())
	}
}

func TestFailureIsolatedPerProvider(t *testing.T) {
	now := time.Now()
	good := &flakyProvider{name: "personal", events: []event.Meeting{
		{ID: "a", Title: "Dentist", Start: now.Add(2 * time.Hour), End: now.Add(3 * time.Hour)},
	}}
	bad := &flakyProvider{name: "work"}
	bad.fail(errors.New("auth expired"))
	s, _ := testScheduler(t, good, bad)

	s.RefreshNow(context.Background())

	meetings, _ := s.Meetings()
	if len(meetings) != 1 || meetings[0].ID != "a" {
		t.Fatalf("meetings = %+v", meetings)
	}
	_, _, reports := s.Report()
	healthyByName := map[string]bool{}
	for _, r := range reports {
		healthyByName[r.Name] = r.Healthy
	}
	if !healthyByName["personal"] || healthyByName["work"] {
		t.Errorf("health = %v", healthyByName)
	}
}

func TestManualCooldown(t *testing.T) {
	s, _ := testScheduler(t, &flakyProvider{name: "work"})
	now := time.Now()
	s.now = func() time.Time { return now }

	if !s.manualAllowed(false) {
		t.Fatal("first manual refresh blocked")
	}
	if s.manualAllowed(false) {
		t.Error("second manual refresh inside cooldown allowed")
	}
	if !s.manualAllowed(true) {
		t.Error("forced refresh blocked by cooldown")
	}

	now = now.Add(manualCooldown + time.Second)
	if !s.manualAllowed(false) {
		t.Error("manual refresh after cooldown blocked")
	}
}

func TestEnqueueNonBlocking(t *testing.T) {
	s, _ := testScheduler(t, &flakyProvider{name: "work"})
	for i := 0; i < cap(s.commands); i++ {
		if !s.Enqueue(Refresh{}) {
			t.Fatalf("enqueue %d failed below capacity", i)
		}
	}
	if s.Enqueue(Refresh{}) {
		t.Error("enqueue succeeded on full queue")
	}
}

func TestRunStops(t *testing.T) {
	p := &flakyProvider{name: "work"}
	s, _ := testScheduler(t, p)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	s.commands <- Stop{}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if p.calls == 0 {
		t.Error("initial fetch did not happen")
	}
}

func TestRunHonorsContextCancel(t *testing.T) {
	s, _ := testScheduler(t, &flakyProvider{name: "work"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit on cancel")
	}
}

func TestReconfigure(t *testing.T) {
	s, _ := testScheduler(t, &flakyProvider{name: "work"})
	s.applyConfig(Reconfigure{Interval: time.Minute, TTL: 2 * time.Minute, FetchTimeout: 3 * time.Second})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interval != time.Minute || s.ttl != 2*time.Minute || s.fetchTimeout != 3*time.Second {
		t.Errorf("interval=%v ttl=%v timeout=%v", s.interval, s.ttl, s.fetchTimeout)
	}
}
