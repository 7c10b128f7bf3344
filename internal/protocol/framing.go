package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// EncodeMessage serializes v to JSON and prepends the 4-byte
// big-endian length prefix. Nothing is written anywhere on failure.
func EncodeMessage(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if len(payload) > MaxMessageSize {
		return nil, &MessageTooLargeError{Size: len(payload), Max: MaxMessageSize}
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	return buf, nil
}

// DecodeMessage decodes a complete framed message (prefix + payload)
// into T. The prefix is validated against MaxMessageSize and the
// observed length before any decode is attempted.
func DecodeMessage[T any](data []byte) (T, error) {
	var zero T
	if len(data) < 4 {
		return zero, &IncompleteMessageError{Expected: 4, Received: len(data)}
	}
	n := int(binary.BigEndian.Uint32(data[:4]))
	if n > MaxMessageSize {
		return zero, &MessageTooLargeError{Size: n, Max: MaxMessageSize}
	}
	if len(data) < 4+n {
		return zero, &IncompleteMessageError{Expected: 4 + n, Received: len(data)}
	}
	var v T
	if err := json.Unmarshal(data[4:4+n], &v); err != nil {
		return zero, fmt.Errorf("decode message: %w", err)
	}
	return v, nil
}

// FrameReader reads framed messages off a byte stream, one frame at a
// time, without assuming a frame arrives in a single underlying read.
type FrameReader struct {
	r io.Reader
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads one frame and returns its payload bytes.
//
// A clean close at a frame boundary returns io.EOF. A close mid-frame
// returns an IncompleteMessageError. A zero-length frame returns
// ErrEmptyMessage.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	var prefix [4]byte
	if read, err := io.ReadFull(fr.r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &IncompleteMessageError{Expected: 4, Received: read}
		}
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(prefix[:]))
	if n > MaxMessageSize {
		return nil, &MessageTooLargeError{Size: n, Max: MaxMessageSize}
	}
	if n == 0 {
		return nil, ErrEmptyMessage
	}
	payload := make([]byte, n)
	read, err := io.ReadFull(fr.r, payload)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &IncompleteMessageError{Expected: n, Received: read}
		}
		return nil, err
	}
	return payload, nil
}

// ReadEnvelope reads one frame and decodes it as an envelope. The
// version gate is the caller's job: a mismatched version should be
// answered, not dropped, so decoding succeeds either way.
func ReadEnvelope[T any](fr *FrameReader) (Envelope[T], error) {
	var env Envelope[T]
	payload, err := fr.ReadFrame()
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// FrameWriter writes framed messages to a byte stream.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter wraps w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteMessage frames and writes one message. Encoding failures
// (including the size cap) happen before any bytes reach the stream.
func (fw *FrameWriter) WriteMessage(v any) error {
	buf, err := EncodeMessage(v)
	if err != nil {
		return err
	}
	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
