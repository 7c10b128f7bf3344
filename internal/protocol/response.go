package protocol

import (
	"time"

	"github.com/chmouel/nextmeetingd/internal/event"
)

// ResponseType discriminates response payloads. Exactly one response
// answers each request; there are no unsolicited pushes.
type ResponseType string

const (
	ResponsePong     ResponseType = "pong"
	ResponseOK       ResponseType = "ok"
	ResponseMeetings ResponseType = "meetings"
	ResponseStatus   ResponseType = "status"
	ResponseError    ResponseType = "error"
)

// ErrorCode classifies error responses. The set is closed and
// versioned with the protocol.
type ErrorCode string

const (
	CodeInternalError        ErrorCode = "internal_error"
	CodeInvalidRequest       ErrorCode = "invalid_request"
	CodeTimeout              ErrorCode = "timeout"
	CodeAuthenticationFailed ErrorCode = "authentication_failed"
	CodeProviderError        ErrorCode = "provider_error"
	CodeRateLimited          ErrorCode = "rate_limited"
	CodeNotFound             ErrorCode = "not_found"
	CodeShuttingDown         ErrorCode = "shutting_down"
	CodeUnsupportedVersion   ErrorCode = "unsupported_version"
)

// StatusInfo is a read-only snapshot of daemon health. Producing one
// never mutates daemon state.
type StatusInfo struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	LastSync      *time.Time       `json:"last_sync,omitempty"`
	NextFetch     *time.Time       `json:"next_fetch,omitempty"`
	Providers     []ProviderStatus `json:"providers"`
	SnoozedUntil  *time.Time       `json:"snoozed_until,omitempty"`
}

// ProviderStatus reports one configured provider.
type ProviderStatus struct {
	Name       string     `json:"name"`
	Healthy    bool       `json:"healthy"`
	LastFetch  *time.Time `json:"last_fetch,omitempty"`
	Error      string     `json:"error,omitempty"`
	EventCount int        `json:"event_count"`
}

// ErrorInfo is the structured body of an error response.
type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Response is one daemon-to-client reply. Only the fields for the
// given Type are populated; the embedded structs flatten into the
// payload object on the wire.
type Response struct {
	Type ResponseType `json:"type"`

	// meetings
	Meetings []event.Meeting `json:"meetings,omitempty"`
	Stale    bool            `json:"stale,omitempty"`

	// status
	*StatusInfo

	// error
	*ErrorInfo
}

// Pong answers a ping.
func Pong() Response { return Response{Type: ResponsePong} }

// OK acknowledges a request with no data to return.
func OK() Response { return Response{Type: ResponseOK} }

// Meetings builds a meeting-list response. Stale marks the data as
// older than its TTL (returned anyway: stale data beats no data).
func Meetings(meetings []event.Meeting, stale bool) Response {
	return Response{Type: ResponseMeetings, Meetings: meetings, Stale: stale}
}

// Status builds a status snapshot response.
func Status(info StatusInfo) Response {
	return Response{Type: ResponseStatus, StatusInfo: &info}
}

// Error builds a structured error response. Errors travel inside a
// normal envelope so a well-formed request always gets a well-formed
// reply.
func Error(code ErrorCode, message string) Response {
	return Response{Type: ResponseError, ErrorInfo: &ErrorInfo{Code: code, Message: message}}
}

// IsError reports whether the response is an error.
func (r Response) IsError() bool { return r.Type == ResponseError }
