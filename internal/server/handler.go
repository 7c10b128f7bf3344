package server

import (
	"fmt"
	"time"

	"github.com/chmouel/nextmeetingd/internal/metrics"
	"github.com/chmouel/nextmeetingd/internal/notify"
	"github.com/chmouel/nextmeetingd/internal/protocol"
	"github.com/chmouel/nextmeetingd/internal/scheduler"
)

// Handler turns decoded requests into responses. It never blocks on
// providers: reads come from the cache and refreshes are enqueued to
// the scheduler.
type Handler struct {
	sched    *scheduler.Scheduler
	notifier *notify.Engine
	metrics  *metrics.Metrics
	started  time.Time
	shutdown func()

	now func() time.Time
}

func NewHandler(sched *scheduler.Scheduler, notifier *notify.Engine, m *metrics.Metrics, shutdown func()) *Handler {
	return &Handler{
		sched:    sched,
		notifier: notifier,
		metrics:  m,
		started:  time.Now(),
		shutdown: shutdown,
		now:      time.Now,
	}
}

// Handle processes one request. Every path returns a response; errors
// travel inside it.
func (h *Handler) Handle(req protocol.Request) protocol.Response {
	h.metrics.RequestsTotal.WithLabelValues(string(req.Type)).Inc()

	if err := req.Validate(); err != nil {
		return protocol.Error(protocol.CodeInvalidRequest, err.Error())
	}

	switch req.Type {
	case protocol.RequestPing:
		return protocol.Pong()

	case protocol.RequestGetMeetings:
		meetings, stale := h.sched.Meetings()
		now := h.now()
		meetings = req.Filter.Apply(meetings, now)
		return protocol.Meetings(meetings, stale)

	case protocol.RequestStatus:
		return protocol.Status(h.statusInfo())

	case protocol.RequestRefresh:
		if !h.sched.Enqueue(scheduler.Refresh{Force: req.Force}) {
			return protocol.Error(protocol.CodeInternalError, "refresh queue full")
		}
		return protocol.OK()

	case protocol.RequestSnooze:
		h.notifier.Snooze(time.Duration(req.Minutes) * time.Minute)
		return protocol.OK()

	case protocol.RequestDismiss:
		if err := h.notifier.Dismiss(req.EventID); err != nil {
			return protocol.Error(protocol.CodeInternalError, fmt.Sprintf("persist dismissal: %v", err))
		}
		return protocol.OK()

	case protocol.RequestUndismiss:
		if err := h.notifier.Undismiss(req.EventID); err != nil {
			return protocol.Error(protocol.CodeInternalError, fmt.Sprintf("persist dismissal: %v", err))
		}
		return protocol.OK()

	case protocol.RequestShutdown:
		// The ack goes out first; the connection loop flushes it
		// before the listener starts closing.
		h.shutdown()
		return protocol.OK()
	}
	// Validate covers the closed set; anything else is a bug.
	return protocol.Error(protocol.CodeInternalError, fmt.Sprintf("unhandled request type %q", req.Type))
}

func (h *Handler) statusInfo() protocol.StatusInfo {
	lastSync, nextFetch, reports := h.sched.Report()

	info := protocol.StatusInfo{
		UptimeSeconds: int64(h.now().Sub(h.started).Seconds()),
		Providers:     make([]protocol.ProviderStatus, 0, len(reports)),
	}
	if !lastSync.IsZero() {
		info.LastSync = &lastSync
	}
	if !nextFetch.IsZero() {
		info.NextFetch = &nextFetch
	}
	if until, ok := h.notifier.SnoozedUntil(); ok {
		info.SnoozedUntil = &until
	}
	for _, r := range reports {
		ps := protocol.ProviderStatus{
			Name:       r.Name,
			Healthy:    r.Healthy,
			Error:      r.Error,
			EventCount: r.EventCount,
		}
		if !r.LastFetch.IsZero() {
			lf := r.LastFetch
			ps.LastFetch = &lf
		}
		info.Providers = append(info.Providers, ps)
	}
	return info
}
