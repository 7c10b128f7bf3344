package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	env := NewEnvelope("req-123", Request{Type: RequestPing})
	buf, err := EncodeMessage(env)
	if err != nil {
		t.Fatal(err)
	}

	n := binary.BigEndian.Uint32(buf[:4])
	if int(n) != len(buf)-4 {
		t.Errorf("length prefix = %d, want %d", n, len(buf)-4)
	}

	decoded, err := DecodeMessage[Envelope[Request]](buf)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.RequestID != "req-123" {
		t.Errorf("request id = %q, want req-123", decoded.RequestID)
	}
	if decoded.Payload.Type != RequestPing {
		t.Errorf("payload type = %q, want ping", decoded.Payload.Type)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	env := NewEnvelope("req-1", Request{
		Type:    RequestDismiss,
		EventID: strings.Repeat("x", MaxMessageSize),
	})
	_, err := EncodeMessage(env)
	var tooLarge *MessageTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err = %v, want MessageTooLargeError", err)
	}
	if tooLarge.Max != MaxMessageSize {
		t.Errorf("max = %d, want %d", tooLarge.Max, MaxMessageSize)
	}
}

func TestDecodeRejectsOversizedPrefix(t *testing.T) {
	// A prefix claiming more than the cap must be rejected before any
	// allocation, even with no payload bytes behind it.
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], MaxMessageSize+1)

	_, err := DecodeMessage[Envelope[Request]](buf[:])
	var tooLarge *MessageTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err = %v, want MessageTooLargeError", err)
	}
}

func TestDecodeIncomplete(t *testing.T) {
	_, err := DecodeMessage[Envelope[Request]]([]byte{0, 0})
	var incomplete *IncompleteMessageError
	if !errors.As(err, &incomplete) {
		t.Fatalf("err = %v, want IncompleteMessageError", err)
	}

	// Claim 100 bytes, provide 10.
	data := append([]byte{0, 0, 0, 100}, make([]byte, 10)...)
	if _, err := DecodeMessage[Envelope[Request]](data); !errors.As(err, &incomplete) {
		t.Fatalf("err = %v, want IncompleteMessageError", err)
	}
}

func TestFrameReaderCleanEOF(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader(nil))
	if _, err := fr.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestFrameReaderEmptyFrame(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader([]byte{0, 0, 0, 0}))
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestFrameReaderTruncatedPayload(t *testing.T) {
	env := NewEnvelope("req-1", Request{Type: RequestStatus})
	buf, err := EncodeMessage(env)
	if err != nil {
		t.Fatal(err)
	}

	fr := NewFrameReader(bytes.NewReader(buf[:len(buf)-3]))
	_, err = fr.ReadFrame()
	var incomplete *IncompleteMessageError
	if !errors.As(err, &incomplete) {
		t.Fatalf("err = %v, want IncompleteMessageError", err)
	}
	if incomplete.Received >= incomplete.Expected {
		t.Errorf("received %d should be less than expected %d", incomplete.Received, incomplete.Expected)
	}
}

func TestFrameReaderMultipleFrames(t *testing.T) {
	var stream bytes.Buffer
	fw := NewFrameWriter(&stream)
	for _, req := range []Request{
		{Type: RequestPing},
		{Type: RequestStatus},
		{Type: RequestRefresh, Force: true},
	} {
		if err := fw.WriteMessage(NewEnvelope("id", req)); err != nil {
			t.Fatal(err)
		}
	}

	fr := NewFrameReader(&stream)
	types := []RequestType{RequestPing, RequestStatus, RequestRefresh}
	for i, want := range types {
		env, err := ReadEnvelope[Request](fr)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if env.Payload.Type != want {
			t.Errorf("frame %d type = %q, want %q", i, env.Payload.Type, want)
		}
	}
	if _, err := fr.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("after last frame err = %v, want io.EOF", err)
	}
}

func TestVersionGate(t *testing.T) {
	env := NewEnvelope("req-1", Request{Type: RequestPing})
	if err := env.CheckVersion(); err != nil {
		t.Fatalf("current version rejected: %v", err)
	}

	env.ProtocolVersion = "2"
	err := env.CheckVersion()
	var unsupported *UnsupportedVersionError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want UnsupportedVersionError", err)
	}
	if unsupported.Version != "2" {
		t.Errorf("version = %q, want 2", unsupported.Version)
	}
}

func TestVersionGateConsumesWholeFrame(t *testing.T) {
	var stream bytes.Buffer
	fw := NewFrameWriter(&stream)

	bad := NewEnvelope("req-1", Request{Type: RequestPing})
	bad.ProtocolVersion = "0"
	if err := fw.WriteMessage(bad); err != nil {
		t.Fatal(err)
	}
	if err := fw.WriteMessage(NewEnvelope("req-2", Request{Type: RequestPing})); err != nil {
		t.Fatal(err)
	}

	// The bad envelope decodes fine (rejection happens above framing)
	// and must not desynchronize the stream for the next frame.
	fr := NewFrameReader(&stream)
	env, err := ReadEnvelope[Request](fr)
	if err != nil {
		t.Fatal(err)
	}
	if env.CheckVersion() == nil {
		t.Fatal("version 0 accepted")
	}

	next, err := ReadEnvelope[Request](fr)
	if err != nil {
		t.Fatal(err)
	}
	if next.RequestID != "req-2" {
		t.Errorf("next frame id = %q, want req-2", next.RequestID)
	}
}
