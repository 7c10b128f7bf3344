package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/chmouel/nextmeetingd/internal/event"
)

// RequestType discriminates request payloads. The set is closed: the
// daemon rejects anything it does not recognize with an
// invalid_request error response.
type RequestType string

const (
	RequestPing        RequestType = "ping"
	RequestGetMeetings RequestType = "get_meetings"
	RequestStatus      RequestType = "status"
	RequestRefresh     RequestType = "refresh"
	RequestSnooze      RequestType = "snooze"
	RequestDismiss     RequestType = "dismiss"
	RequestUndismiss   RequestType = "undismiss"
	RequestShutdown    RequestType = "shutdown"
)

// Request is one client-to-daemon operation. Only the fields for the
// given Type are populated.
type Request struct {
	Type RequestType `json:"type"`

	// get_meetings
	Filter *MeetingsFilter `json:"filter,omitempty"`

	// refresh
	Force bool `json:"force,omitempty"`

	// snooze
	Minutes int `json:"minutes,omitempty"`

	// dismiss / undismiss
	EventID string `json:"event_id,omitempty"`
}

// Validate checks that the request type is known and its fields are
// usable. It does not touch daemon state.
func (r Request) Validate() error {
	switch r.Type {
	case RequestPing, RequestGetMeetings, RequestStatus, RequestRefresh, RequestShutdown:
		return nil
	case RequestSnooze:
		if r.Minutes <= 0 {
			return fmt.Errorf("snooze minutes must be positive, got %d", r.Minutes)
		}
		return nil
	case RequestDismiss, RequestUndismiss:
		if r.EventID == "" {
			return fmt.Errorf("%s requires an event_id", r.Type)
		}
		return nil
	default:
		return fmt.Errorf("unknown request type %q", r.Type)
	}
}

// MeetingsFilter narrows a get_meetings request. A zero filter matches
// everything in the cache window.
type MeetingsFilter struct {
	TodayOnly         bool     `json:"today_only,omitempty"`
	Limit             int      `json:"limit,omitempty"`
	SkipAllDay        bool     `json:"skip_all_day,omitempty"`
	IncludeTitles     []string `json:"include_titles,omitempty"`
	ExcludeTitles     []string `json:"exclude_titles,omitempty"`
	IncludeCalendars  []string `json:"include_calendars,omitempty"`
	ExcludeCalendars  []string `json:"exclude_calendars,omitempty"`
	WithinMinutes     int      `json:"within_minutes,omitempty"`
	OnlyWithLink      bool     `json:"only_with_link,omitempty"`
	SkipDeclined      bool     `json:"skip_declined,omitempty"`
	SkipTentative     bool     `json:"skip_tentative,omitempty"`
	SkipPending       bool     `json:"skip_pending,omitempty"`
	SkipWithoutGuests bool     `json:"skip_without_guests,omitempty"`
}

// TimeWindow is a concrete half-open range [From, To) that a filter
// normalizes to. Windows are comparable, so they can serve as cache
// key components: distinct filters with the same effective range share
// a cache entry.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// String renders the window in a stable form suitable for cache keys.
func (w TimeWindow) String() string {
	return w.From.UTC().Format(time.RFC3339) + "/" + w.To.UTC().Format(time.RFC3339)
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Window normalizes the filter's time constraints into a concrete
// range anchored at now. The default horizon is 24 hours; today_only
// clips to the end of the local day and within_minutes clips the far
// edge.
func (f *MeetingsFilter) Window(now time.Time) TimeWindow {
	from := now
	to := now.Add(24 * time.Hour)
	if f != nil {
		if f.TodayOnly {
			y, m, d := now.Date()
			to = time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
		}
		if f.WithinMinutes > 0 {
			limit := now.Add(time.Duration(f.WithinMinutes) * time.Minute)
			if limit.Before(to) {
				to = limit
			}
		}
	}
	return TimeWindow{From: from, To: to}
}

// Apply filters meetings against the receiver, evaluated at now.
// The input slice is not modified; order is preserved.
func (f *MeetingsFilter) Apply(meetings []event.Meeting, now time.Time) []event.Meeting {
	out := make([]event.Meeting, 0, len(meetings))
	window := f.Window(now)
	for _, m := range meetings {
		if !window.Contains(m.Start) && !m.Ongoing(now) {
			continue
		}
		if f != nil && !f.matches(m) {
			continue
		}
		out = append(out, m)
	}
	if f != nil && f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (f *MeetingsFilter) matches(m event.Meeting) bool {
	if f.SkipAllDay && m.AllDay {
		return false
	}
	if f.OnlyWithLink && m.MeetingLink == "" {
		return false
	}
	if f.SkipDeclined && m.ResponseStatus == event.ResponseDeclined {
		return false
	}
	if f.SkipTentative && m.ResponseStatus == event.ResponseTentative {
		return false
	}
	if f.SkipPending && m.ResponseStatus == event.ResponseNeedsAction {
		return false
	}
	if f.SkipWithoutGuests && m.AttendeeCount == 0 {
		return false
	}
	if len(f.IncludeTitles) > 0 && !matchAny(m.Title, f.IncludeTitles) {
		return false
	}
	if matchAny(m.Title, f.ExcludeTitles) {
		return false
	}
	if len(f.IncludeCalendars) > 0 && !matchAny(m.CalendarID, f.IncludeCalendars) {
		return false
	}
	if matchAny(m.CalendarID, f.ExcludeCalendars) {
		return false
	}
	return true
}

// matchAny reports whether s contains any of the patterns,
// case-insensitively. Any pattern match retains (include) or removes
// (exclude); the caller decides which.
func matchAny(s string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
