// Package event defines the normalized meeting representation served
// by the daemon. Providers translate their raw calendar formats into
// this type before anything else in the daemon touches them.
package event

import (
	"sort"
	"time"
)

// ResponseStatus is the user's RSVP state for a meeting.
type ResponseStatus string

const (
	ResponseAccepted    ResponseStatus = "accepted"
	ResponseDeclined    ResponseStatus = "declined"
	ResponseTentative   ResponseStatus = "tentative"
	ResponseNeedsAction ResponseStatus = "needs_action"
	ResponseUnknown     ResponseStatus = "unknown"
)

// Meeting is a provider-agnostic calendar event.
type Meeting struct {
	ID             string         `json:"id"`
	CalendarID     string         `json:"calendar_id"`
	Title          string         `json:"title"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	AllDay         bool           `json:"all_day,omitempty"`
	MeetingLink    string         `json:"meeting_link,omitempty"`
	ResponseStatus ResponseStatus `json:"response_status,omitempty"`
	AttendeeCount  int            `json:"attendee_count,omitempty"`
}

// Ongoing reports whether the meeting is in progress at t.
func (m Meeting) Ongoing(t time.Time) bool {
	return !t.Before(m.Start) && t.Before(m.End)
}

// StartsWithin reports whether the meeting starts in the half-open
// window [t, t+d).
func (m Meeting) StartsWithin(t time.Time, d time.Duration) bool {
	return !m.Start.Before(t) && m.Start.Before(t.Add(d))
}

// MinutesUntilEnd returns whole minutes from t until the meeting ends,
// clamped at zero.
func (m Meeting) MinutesUntilEnd(t time.Time) int {
	mins := int(m.End.Sub(t).Minutes())
	if mins < 0 {
		return 0
	}
	return mins
}

// SortByStart orders meetings by start time in place, earliest first.
// Ties keep their relative order so repeated refreshes are stable.
func SortByStart(meetings []Meeting) {
	sort.SliceStable(meetings, func(i, j int) bool {
		return meetings[i].Start.Before(meetings[j].Start)
	})
}
