package protocol

import (
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned when a frame declares a zero-length
// payload. At a frame boundary callers treat it as a peer disconnect.
var ErrEmptyMessage = errors.New("empty message")

// MessageTooLargeError is returned when a payload exceeds MaxMessageSize,
// either while encoding or when a length prefix claims more than the
// limit (which is never trusted enough to allocate for).
type MessageTooLargeError struct {
	Size int
	Max  int
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("message too large: %d bytes (max %d)", e.Size, e.Max)
}

// IncompleteMessageError is returned when the stream ends before the
// declared frame length has been read.
type IncompleteMessageError struct {
	Expected int
	Received int
}

func (e *IncompleteMessageError) Error() string {
	return fmt.Sprintf("incomplete message: expected %d bytes, got %d", e.Expected, e.Received)
}

// UnsupportedVersionError is returned for envelopes whose
// protocol_version is not the single supported value.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported protocol version %q (want %q)", e.Version, Version)
}
