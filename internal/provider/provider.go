// Package provider defines the calendar provider capability the
// daemon consumes. Concrete transports (OAuth, CalDAV, ICS parsing)
// live behind this interface; the daemon only ever sees normalized
// meetings or a typed error.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/chmouel/nextmeetingd/internal/event"
)

// Provider is one configured calendar source.
type Provider interface {
	// Name identifies the provider in cache keys and status reports.
	Name() string

	// FetchEvents returns normalized events starting in [from, to).
	// Implementations must honor ctx cancellation; the scheduler
	// bounds every call with a timeout.
	FetchEvents(ctx context.Context, from, to time.Time) ([]event.Meeting, error)

	// Status reports authentication state without touching the
	// network.
	Status() Status
}

// Status is a provider's self-reported health.
type Status struct {
	Authenticated bool
	LastError     string
}

// ErrorKind classifies provider failures for status reporting and
// error responses.
type ErrorKind int

const (
	KindUnavailable ErrorKind = iota
	KindAuthentication
	KindRateLimited
	KindNotFound
)

// Error is a typed provider failure. Provider errors are never fatal
// to the daemon: they are absorbed into status and leave prior cache
// entries intact.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
