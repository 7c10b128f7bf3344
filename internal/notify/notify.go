// Package notify decides what and when to notify about upcoming
// meetings. OS-level delivery happens behind the Sink interface; the
// engine only computes which notifications are due and deduplicates
// them across refreshes.
package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/chmouel/nextmeetingd/internal/event"
)

// Kind distinguishes the notification flavors the engine emits.
type Kind string

const (
	KindStartsSoon    Kind = "starts_soon"
	KindEndingSoon    Kind = "ending_soon"
	KindMorningAgenda Kind = "morning_agenda"
)

// Notification is what the engine hands to the sink.
type Notification struct {
	Kind        Kind
	Summary     string
	LeadMinutes int
	Meeting     event.Meeting
}

// Sink delivers notifications. Implementations must be fire-and-forget
// and non-blocking from the engine's perspective.
type Sink interface {
	Notify(n Notification)
}

// Config controls notification behavior.
type Config struct {
	Enabled bool
	// Minutes are the lead-time thresholds, e.g. [15, 5, 1].
	Minutes []int
	// EndWarningMinutes warns that many minutes before an ongoing
	// meeting ends. Zero disables.
	EndWarningMinutes int
	// MorningAgenda is a local "HH:MM" after which a once-per-day
	// agenda summary fires. Empty disables.
	MorningAgenda string
}

// retention bounds how long sent-notification hashes are kept. Well
// past any event's occurrence, so pruning can never re-trigger a
// notification within the same occurrence.
const retention = 24 * time.Hour

// Engine evaluates cache contents against the configured thresholds
// and emits each (event, threshold) notification at most once per
// occurrence.
type Engine struct {
	mu           sync.Mutex
	cfg          Config
	sent         map[string]time.Time
	snoozedUntil time.Time

	sink      Sink
	dismissed *DismissedStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates an engine delivering through sink. dismissed may
// be nil when dismissals are not persisted.
func NewEngine(cfg Config, sink Sink, dismissed *DismissedStore, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		sent:      make(map[string]time.Time),
		sink:      sink,
		dismissed: dismissed,
		logger:    logger,
		now:       time.Now,
	}
}

// SetConfig swaps the thresholds, used on reload. In-flight dedup
// state is kept so changing thresholds cannot re-notify.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

// hash is stable across refreshes of the same logical event: keyed by
// event id, start time, threshold and kind, so re-fetching identical
// data never re-notifies.
func hash(m event.Meeting, minutes int, kind Kind) string {
	h := sha256.New()
	h.Write([]byte(m.ID))
	h.Write([]byte(strconv.FormatInt(m.Start.Unix(), 10)))
	h.Write([]byte(strconv.Itoa(minutes)))
	h.Write([]byte(kind))
	return hex.EncodeToString(h.Sum(nil))
}

// Check evaluates meetings (the freshly refreshed cache contents) and
// emits any due notifications. Returns the number emitted. Called by
// the scheduler after every cache update, never concurrently with
// itself for the same refresh.
func (e *Engine) Check(meetings []event.Meeting) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.Enabled {
		return 0
	}
	now := e.now()
	if now.Before(e.snoozedUntil) {
		e.logger.Debug("notifications snoozed", "until", e.snoozedUntil)
		return 0
	}

	sent := 0
	for _, m := range meetings {
		if m.AllDay || e.isDismissed(m.ID) {
			continue
		}
		for _, minutes := range e.cfg.Minutes {
			lead := time.Duration(minutes) * time.Minute
			// Due when notify time has passed but the meeting has not
			// started yet.
			if now.Before(m.Start.Add(-lead)) || !now.Before(m.Start) {
				continue
			}
			if e.emit(Notification{
				Kind:        KindStartsSoon,
				Summary:     fmt.Sprintf("%s in %d min", m.Title, minutes),
				LeadMinutes: minutes,
				Meeting:     m,
			}, hash(m, minutes, KindStartsSoon), now) {
				sent++
			}
		}
		if e.cfg.EndWarningMinutes > 0 && m.Ongoing(now) {
			left := m.MinutesUntilEnd(now)
			if left <= e.cfg.EndWarningMinutes {
				if e.emit(Notification{
					Kind:        KindEndingSoon,
					Summary:     fmt.Sprintf("%s ends in %d min", m.Title, left),
					LeadMinutes: e.cfg.EndWarningMinutes,
					Meeting:     m,
				}, hash(m, e.cfg.EndWarningMinutes, KindEndingSoon), now) {
					sent++
				}
			}
		}
	}

	sent += e.checkMorningAgenda(meetings, now)
	e.pruneLocked(now)
	return sent
}

// emit sends through the sink unless the hash was already recorded.
// Caller holds the mutex.
func (e *Engine) emit(n Notification, h string, now time.Time) bool {
	if _, seen := e.sent[h]; seen {
		return false
	}
	e.sink.Notify(n)
	e.sent[h] = now
	e.logger.Info("notification sent", "kind", n.Kind, "event", n.Meeting.ID, "lead_minutes", n.LeadMinutes)
	return true
}

// checkMorningAgenda fires a single daily summary once the configured
// local time has passed. Caller holds the mutex.
func (e *Engine) checkMorningAgenda(meetings []event.Meeting, now time.Time) int {
	if e.cfg.MorningAgenda == "" {
		return 0
	}
	at, err := time.ParseInLocation("15:04", e.cfg.MorningAgenda, now.Location())
	if err != nil {
		e.logger.Warn("invalid morning agenda time", "value", e.cfg.MorningAgenda, "error", err)
		return 0
	}
	y, mo, d := now.Date()
	due := time.Date(y, mo, d, at.Hour(), at.Minute(), 0, 0, now.Location())
	if now.Before(due) {
		return 0
	}

	h := "morning-agenda-" + now.Format("2006-01-02")
	if _, seen := e.sent[h]; seen {
		return 0
	}

	today := 0
	for _, m := range meetings {
		if m.Start.Year() == y && m.Start.Month() == mo && m.Start.Day() == d && !m.AllDay {
			today++
		}
	}
	e.sink.Notify(Notification{
		Kind:    KindMorningAgenda,
		Summary: fmt.Sprintf("%d meetings today", today),
	})
	e.sent[h] = now
	return 1
}

// pruneLocked drops dedup hashes past the retention window. Caller
// holds the mutex.
func (e *Engine) pruneLocked(now time.Time) {
	for h, at := range e.sent {
		if now.Sub(at) > retention {
			delete(e.sent, h)
		}
	}
}

// Snooze suppresses all emission for the given duration. Cache
// refreshes keep running; only delivery pauses.
func (e *Engine) Snooze(d time.Duration) {
	e.mu.Lock()
	e.snoozedUntil = e.now().Add(d)
	e.mu.Unlock()
	e.logger.Info("notifications snoozed", "duration", d)
}

// SnoozedUntil returns the snooze deadline if one is active.
func (e *Engine) SnoozedUntil() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.now().Before(e.snoozedUntil) {
		return e.snoozedUntil, true
	}
	return time.Time{}, false
}

// Dismiss marks an event id as not-to-be-notified and persists it.
func (e *Engine) Dismiss(eventID string) error {
	if e.dismissed == nil {
		return nil
	}
	return e.dismissed.Add(eventID)
}

// Undismiss removes an event id from the dismissed set.
func (e *Engine) Undismiss(eventID string) error {
	if e.dismissed == nil {
		return nil
	}
	return e.dismissed.Remove(eventID)
}

// IsDismissed reports whether the event id is dismissed.
func (e *Engine) IsDismissed(eventID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isDismissed(eventID)
}

func (e *Engine) isDismissed(eventID string) bool {
	return e.dismissed != nil && e.dismissed.Contains(eventID)
}
