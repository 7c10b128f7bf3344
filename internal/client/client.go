// Package client talks to a running daemon over its Unix socket. Each
// call dials a fresh connection; the protocol allows pipelining but
// CLI usage never needs it.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/chmouel/nextmeetingd/internal/event"
	"github.com/chmouel/nextmeetingd/internal/protocol"
)

// DaemonError is a structured error response from the daemon.
type DaemonError struct {
	Code    protocol.ErrorCode
	Message string
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("daemon: %s (%s)", e.Message, e.Code)
}

// Client issues requests against a daemon socket.
type Client struct {
	SocketPath  string
	DialTimeout time.Duration
	CallTimeout time.Duration
}

func New(socketPath string) *Client {
	return &Client{
		SocketPath:  socketPath,
		DialTimeout: 5 * time.Second,
		CallTimeout: 10 * time.Second,
	}
}

// Do sends one request and reads its response. The request id is
// generated here and verified against the echo in the reply.
func (c *Client) Do(req protocol.Request) (protocol.Response, error) {
	var zero protocol.Response

	conn, err := net.DialTimeout("unix", c.SocketPath, c.DialTimeout)
	if err != nil {
		return zero, fmt.Errorf("connect to daemon at %s: %w", c.SocketPath, err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(c.CallTimeout))

	requestID := uuid.NewString()
	writer := protocol.NewFrameWriter(conn)
	if err := writer.WriteMessage(protocol.NewEnvelope(requestID, req)); err != nil {
		return zero, fmt.Errorf("send request: %w", err)
	}

	env, err := protocol.ReadEnvelope[protocol.Response](protocol.NewFrameReader(conn))
	if err != nil {
		return zero, fmt.Errorf("read response: %w", err)
	}
	if env.RequestID != requestID && env.RequestID != "" {
		return zero, fmt.Errorf("response for request %q, sent %q", env.RequestID, requestID)
	}
	if env.Payload.IsError() {
		if env.Payload.ErrorInfo == nil {
			return zero, fmt.Errorf("daemon error with no detail")
		}
		return zero, &DaemonError{Code: env.Payload.Code, Message: env.Payload.Message}
	}
	return env.Payload, nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping() error {
	resp, err := c.Do(protocol.Request{Type: protocol.RequestPing})
	if err != nil {
		return err
	}
	if resp.Type != protocol.ResponsePong {
		return fmt.Errorf("unexpected reply to ping: %s", resp.Type)
	}
	return nil
}

// Meetings fetches the cached meeting list. A nil filter returns
// everything in the default window. Stale reports whether the data is
// older than its TTL.
func (c *Client) Meetings(filter *protocol.MeetingsFilter) (meetings []event.Meeting, stale bool, err error) {
	resp, err := c.Do(protocol.Request{Type: protocol.RequestGetMeetings, Filter: filter})
	if err != nil {
		return nil, false, err
	}
	return resp.Meetings, resp.Stale, nil
}

// Status fetches the daemon health snapshot.
func (c *Client) Status() (*protocol.StatusInfo, error) {
	resp, err := c.Do(protocol.Request{Type: protocol.RequestStatus})
	if err != nil {
		return nil, err
	}
	if resp.StatusInfo == nil {
		return nil, fmt.Errorf("status reply carried no status")
	}
	return resp.StatusInfo, nil
}

// Refresh asks the daemon to fetch now. Force bypasses the manual
// cooldown. The daemon acks immediately; the fetch runs in the
// background.
func (c *Client) Refresh(force bool) error {
	_, err := c.Do(protocol.Request{Type: protocol.RequestRefresh, Force: force})
	return err
}

// Snooze pauses notifications for the given number of minutes.
func (c *Client) Snooze(minutes int) error {
	_, err := c.Do(protocol.Request{Type: protocol.RequestSnooze, Minutes: minutes})
	return err
}

// Dismiss suppresses notifications for one event.
func (c *Client) Dismiss(eventID string) error {
	_, err := c.Do(protocol.Request{Type: protocol.RequestDismiss, EventID: eventID})
	return err
}

// Undismiss re-enables notifications for a dismissed event.
func (c *Client) Undismiss(eventID string) error {
	_, err := c.Do(protocol.Request{Type: protocol.RequestUndismiss, EventID: eventID})
	return err
}

// Shutdown asks the daemon to exit gracefully.
func (c *Client) Shutdown() error {
	_, err := c.Do(protocol.Request{Type: protocol.RequestShutdown})
	return err
}

// IsRunning reports whether the daemon socket is connectable.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.SocketPath, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// WaitForReady polls until the daemon answers a ping or the timeout
// expires.
func (c *Client) WaitForReady(timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return fmt.Errorf("daemon not ready within %s", timeout)
		case <-ticker.C:
			if err := c.Ping(); err == nil {
				return nil
			}
		}
	}
}
