// Package protocol defines the wire format spoken between the daemon
// and its clients over the Unix socket.
//
// Every message is a length-prefixed frame:
//
//	+----------------+------------------+
//	| length (4 BE)  |  JSON payload    |
//	+----------------+------------------+
//
// and the JSON payload is an Envelope carrying a version tag, a
// request id for correlation, and the request or response itself.
package protocol

// Version is the single protocol version this build speaks. There is
// no negotiation: client and daemon ship together, so a mismatch is
// rejected outright rather than coerced.
const Version = "1"

// MaxMessageSize caps a frame payload at 1 MiB. The limit is checked
// before any buffer is allocated from a length prefix.
const MaxMessageSize = 1024 * 1024

// Envelope wraps every protocol message with a version tag and a
// request id. The daemon echoes the request id of the request it is
// answering.
type Envelope[T any] struct {
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	Payload         T      `json:"payload"`
}

// NewEnvelope wraps payload with the current protocol version.
func NewEnvelope[T any](requestID string, payload T) Envelope[T] {
	return Envelope[T]{
		ProtocolVersion: Version,
		RequestID:       requestID,
		Payload:         payload,
	}
}

// CheckVersion returns an UnsupportedVersionError unless the envelope
// carries the supported protocol version.
func (e Envelope[T]) CheckVersion() error {
	if e.ProtocolVersion != Version {
		return &UnsupportedVersionError{Version: e.ProtocolVersion}
	}
	return nil
}
