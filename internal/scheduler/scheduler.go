// Package scheduler owns the background refresh loop. It is the only
// writer to the event cache: request handlers that want fresh data
// enqueue a command here instead of fetching inline, so a burst of
// clients never turns into a burst of provider calls.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chmouel/nextmeetingd/internal/cache"
	"github.com/chmouel/nextmeetingd/internal/event"
	"github.com/chmouel/nextmeetingd/internal/metrics"
	"github.com/chmouel/nextmeetingd/internal/notify"
	"github.com/chmouel/nextmeetingd/internal/provider"
)

// Command is a control message for the running loop.
type Command interface{ isCommand() }

// Refresh asks for an immediate fetch. Unforced refreshes are dropped
// inside the manual cooldown; Force bypasses it.
type Refresh struct{ Force bool }

// Reconfigure applies new timings, typically after a SIGHUP reload.
type Reconfigure struct {
	Interval     time.Duration
	TTL          time.Duration
	FetchTimeout time.Duration
}

// Stop ends the loop after the current iteration.
type Stop struct{}

func (Refresh) isCommand()     {}
func (Reconfigure) isCommand() {}
func (Stop) isCommand()        {}

// manualCooldown throttles unforced client-triggered refreshes.
const manualCooldown = 10 * time.Second

// fetchWindow is how far ahead each refresh looks.
const fetchWindow = 24 * time.Hour

type providerState struct {
	lastFetch  time.Time
	lastError  error
	eventCount int
	failures   int
	cacheKey   string
}

// ProviderReport is a point-in-time health view of one provider.
type ProviderReport struct {
	Name       string
	Healthy    bool
	LastFetch  time.Time
	Error      string
	EventCount int
}

type Scheduler struct {
	cache    *cache.Cache
	registry *provider.Registry
	notifier *notify.Engine
	metrics  *metrics.Metrics
	logger   *slog.Logger

	commands chan Command

	mu           sync.Mutex
	interval     time.Duration
	ttl          time.Duration
	fetchTimeout time.Duration
	lastSync     time.Time
	nextFetch    time.Time
	lastManual   time.Time
	providers    map[string]*providerState

	now func() time.Time
}

func New(c *cache.Cache, reg *provider.Registry, n *notify.Engine, m *metrics.Metrics, interval, ttl, fetchTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cache:        c,
		registry:     reg,
		notifier:     n,
		metrics:      m,
		logger:       logger.With("component", "scheduler"),
		commands:     make(chan Command, 16),
		interval:     interval,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		providers:    map[string]*providerState{},
		now:          time.Now,
	}
}

// Enqueue hands a command to the loop without blocking. Returns false
// when the queue is full.
func (s *Scheduler) Enqueue(cmd Command) bool {
	select {
	case s.commands <- cmd:
		return true
	default:
		return false
	}
}

// Run drives the loop until Stop is enqueued or ctx is cancelled. The
// first fetch happens immediately so clients connecting right after
// startup see data as soon as providers answer.
func (s *Scheduler) Run(ctx context.Context) error {
	s.RefreshNow(ctx)

	timer := time.NewTimer(s.schedule())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.RefreshNow(ctx)
			timer.Reset(s.schedule())
		case cmd := <-s.commands:
			switch c := cmd.(type) {
			case Refresh:
				if !s.manualAllowed(c.Force) {
					s.logger.Debug("manual refresh inside cooldown, dropped")
					continue
				}
				s.RefreshNow(ctx)
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.schedule())
			case Reconfigure:
				s.applyConfig(c)
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.schedule())
			case Stop:
				s.logger.Debug("scheduler stopping")
				return nil
			}
		}
	}
}

// schedule picks the next tick with a little jitter so several daemons
// on one host do not hit providers in lockstep, and records it for
// status reporting.
func (s *Scheduler) schedule() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.interval
	jitter := time.Duration((rand.Float64()*0.2 - 0.1) * float64(d))
	d += jitter
	s.nextFetch = s.now().Add(d)
	return d
}

func (s *Scheduler) manualAllowed(force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !force && now.Sub(s.lastManual) < manualCooldown {
		return false
	}
	s.lastManual = now
	return true
}

func (s *Scheduler) applyConfig(c Reconfigure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Interval > 0 {
		s.interval = c.Interval
	}
	if c.TTL > 0 {
		s.ttl = c.TTL
	}
	if c.FetchTimeout > 0 {
		s.fetchTimeout = c.FetchTimeout
	}
	s.logger.Info("scheduler reconfigured", "interval", s.interval, "ttl", s.ttl, "fetch_timeout", s.fetchTimeout)
}

// RefreshNow fetches every provider once, updates the cache with
// whatever succeeded, and runs the notifier over the merged view. A
// failed provider keeps its previous cache entry; the next tick is the
// retry.
func (s *Scheduler) RefreshNow(ctx context.Context) {
	s.mu.Lock()
	ttl := s.ttl
	timeout := s.fetchTimeout
	s.mu.Unlock()

	now := s.now()
	from := now.Truncate(time.Hour)
	to := from.Add(fetchWindow + time.Hour)

	for _, p := range s.registry.All() {
		s.fetchOne(ctx, p, from, to, ttl, timeout)
	}

	// Stale entries are never evicted here: a provider outage must not
	// cost clients the last good data.
	s.metrics.CacheEntries.Set(float64(s.cache.Len()))
	if next, ok := s.cache.NextExpiry(); ok {
		s.logger.Debug("cache refreshed", "entries", s.cache.Len(), "next_expiry", next)
	}

	s.mu.Lock()
	s.lastSync = s.now()
	s.mu.Unlock()

	meetings, _ := s.cache.Snapshot()
	s.notifier.Check(meetings)
}

func (s *Scheduler) fetchOne(ctx context.Context, p provider.Provider, from, to time.Time, ttl, timeout time.Duration) {
	name := p.Name()
	s.metrics.FetchesTotal.WithLabelValues(name).Inc()

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	events, err := p.FetchEvents(fetchCtx, from, to)
	st := s.state(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	st.lastFetch = s.now()
	if err != nil {
		st.lastError = err
		st.failures++
		s.metrics.FetchFailuresTotal.WithLabelValues(name).Inc()
		s.logger.Warn("provider fetch failed", "provider", name, "failures", st.failures, "error", err)
		return
	}
	st.lastError = nil
	st.failures = 0
	st.eventCount = len(events)
	key := cache.Key(name, from, to)
	// One live entry per provider: the fetch window shifts over time,
	// so a new key must retire the old one or Snapshot would serve the
	// same meetings twice.
	if st.cacheKey != "" && st.cacheKey != key {
		s.cache.Invalidate(st.cacheKey)
	}
	s.cache.Put(key, events, ttl)
	st.cacheKey = key
	s.logger.Debug("provider fetched", "provider", name, "events", len(events))
}

func (s *Scheduler) state(name string) *providerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.providers[name]
	if !ok {
		st = &providerState{}
		s.providers[name] = st
	}
	return st
}

// Report returns the status view the server exposes to clients. Zero
// times mean "never" and "not scheduled".
func (s *Scheduler) Report() (lastSync, nextFetch time.Time, providers []ProviderReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.registry.All() {
		st, ok := s.providers[p.Name()]
		if !ok {
			providers = append(providers, ProviderReport{Name: p.Name()})
			continue
		}
		r := ProviderReport{
			Name:       p.Name(),
			Healthy:    st.lastError == nil && !st.lastFetch.IsZero(),
			LastFetch:  st.lastFetch,
			EventCount: st.eventCount,
		}
		if st.lastError != nil {
			r.Error = st.lastError.Error()
		}
		providers = append(providers, r)
	}
	return s.lastSync, s.nextFetch, providers
}

// Meetings is a convenience for handlers: the merged cache view plus
// its staleness flag.
func (s *Scheduler) Meetings() ([]event.Meeting, bool) {
	return s.cache.Snapshot()
}
