package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chmouel/nextmeetingd/internal/event"
)

// Static serves a fixed set of meetings, loaded from a JSON fixture
// file or supplied directly. It backs local testing and static
// calendar setups where events come from a file rather than a remote
// service.
type Static struct {
	name string

	mu     sync.RWMutex
	events []event.Meeting
}

// NewStatic creates a static provider serving the given meetings.
func NewStatic(name string, events []event.Meeting) *Static {
	return &Static{name: name, events: events}
}

// LoadStatic creates a static provider from a JSON file holding an
// array of meetings.
func LoadStatic(name, path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}
	var events []event.Meeting
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parse events file %s: %w", path, err)
	}
	return NewStatic(name, events), nil
}

func (s *Static) Name() string { return s.name }

// SetEvents replaces the served meetings. Used by tests and by reload.
func (s *Static) SetEvents(events []event.Meeting) {
	s.mu.Lock()
	s.events = events
	s.mu.Unlock()
}

func (s *Static) FetchEvents(ctx context.Context, from, to time.Time) ([]event.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Provider: s.name, Kind: KindUnavailable, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []event.Meeting
	for _, m := range s.events {
		if !m.Start.Before(from) && m.Start.Before(to) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Static) Status() Status {
	return Status{Authenticated: true}
}

// Disabled always fails. It stands in for a provider that is
// configured but switched off or permanently broken, so status
// reporting and failure isolation can be exercised end to end.
type Disabled struct {
	name string
}

// NewDisabled creates a provider that rejects every fetch.
func NewDisabled(name string) *Disabled {
	return &Disabled{name: name}
}

func (d *Disabled) Name() string { return d.name }

func (d *Disabled) FetchEvents(ctx context.Context, from, to time.Time) ([]event.Meeting, error) {
	return nil, &Error{Provider: d.name, Kind: KindUnavailable, Err: errors.New("provider disabled")}
}

func (d *Disabled) Status() Status {
	return Status{Authenticated: false, LastError: "provider disabled"}
}
