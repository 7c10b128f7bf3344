package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chmouel/nextmeetingd/internal/metrics"
	"github.com/chmouel/nextmeetingd/internal/protocol"
)

// SocketPathError means the socket path could not be prepared or
// bound.
type SocketPathError struct {
	Path string
	Err  error
}

func (e *SocketPathError) Error() string {
	return fmt.Sprintf("socket path %s: %v", e.Path, e.Err)
}

func (e *SocketPathError) Unwrap() error { return e.Err }

// SocketInUseError means another live daemon is already serving the
// socket path.
type SocketInUseError struct {
	Path string
}

func (e *SocketInUseError) Error() string {
	return fmt.Sprintf("socket %s is in use by a running daemon", e.Path)
}

// Server accepts Unix-socket connections and runs the framed
// request/response loop on each.
type Server struct {
	sockPath string
	handler  *Handler
	metrics  *metrics.Metrics
	logger   *slog.Logger

	connTimeout time.Duration
	maxConns    int

	listener net.Listener
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(sockPath string, handler *Handler, m *metrics.Metrics, connTimeout time.Duration, maxConns int, logger *slog.Logger) *Server {
	return &Server{
		sockPath:    sockPath,
		handler:     handler,
		metrics:     m,
		logger:      logger.With("component", "server"),
		connTimeout: connTimeout,
		maxConns:    maxConns,
		conns:       make(map[net.Conn]struct{}),
	}
}

// Start binds the socket and begins accepting in the background. A
// leftover socket file is probed first: if something answers, another
// daemon owns it and binding fails; if not, the stale file is removed.
func (s *Server) Start(ctx context.Context) error {
	if _, err := os.Stat(s.sockPath); err == nil {
		if socketAnswers(s.sockPath) {
			return &SocketInUseError{Path: s.sockPath}
		}
		s.logger.Warn("removing stale socket", "path", s.sockPath)
		if err := os.Remove(s.sockPath); err != nil {
			return &SocketPathError{Path: s.sockPath, Err: err}
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.sockPath), 0700); err != nil {
		return &SocketPathError{Path: s.sockPath, Err: err}
	}

	ln, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return &SocketPathError{Path: s.sockPath, Err: err}
	}
	if err := os.Chmod(s.sockPath, 0600); err != nil {
		_ = ln.Close()
		return &SocketPathError{Path: s.sockPath, Err: err}
	}
	s.listener = ln
	s.logger.Info("listening", "socket", s.sockPath)

	// Counting semaphore for concurrent connections.
	sem := make(chan struct{}, s.maxConns)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return // listener closed
			}
			select {
			case sem <- struct{}{}:
			default:
				s.logger.Warn("connection limit reached, rejecting client")
				_ = conn.Close()
				continue
			}
			s.wg.Add(1)
			s.metrics.ConnectionsActive.Inc()
			s.track(conn, true)
			go func() {
				defer func() {
					s.track(conn, false)
					<-sem
					s.metrics.ConnectionsActive.Dec()
					s.wg.Done()
				}()
				s.serveConn(ctx, conn)
			}()
		}
	}()
	return nil
}

// Stop closes the listener, gives in-flight connections the grace
// period to finish, force-closes the stragglers, and removes the
// socket file.
func (s *Server) Stop(grace time.Duration) {
	if s.listener != nil {
		_ = s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		s.mu.Lock()
		n := len(s.conns)
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		if n > 0 {
			s.logger.Warn("closed lingering connections at shutdown", "count", n)
		}
		<-done
	}
	_ = os.Remove(s.sockPath)
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
	s.mu.Unlock()
}

// serveConn runs the request/response loop for one client. The
// connection supports pipelining: frames are answered in order until
// the client hangs up, the read deadline fires, or the stream breaks.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	reader := protocol.NewFrameReader(conn)
	writer := protocol.NewFrameWriter(conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.connTimeout))

		env, err := protocol.ReadEnvelope[protocol.Request](reader)
		if err != nil {
			s.replyReadError(writer, err)
			return
		}
		if ctx.Err() != nil {
			s.reply(writer, env.RequestID, protocol.Error(protocol.CodeShuttingDown, "daemon is shutting down"))
			return
		}
		if err := env.CheckVersion(); err != nil {
			s.reply(writer, env.RequestID, protocol.Error(protocol.CodeUnsupportedVersion, err.Error()))
			continue
		}

		resp := s.handler.Handle(env.Payload)
		if !s.reply(writer, env.RequestID, resp) {
			return
		}
	}
}

// replyReadError answers a broken read where an answer is still
// possible. Clean disconnects and timeouts get no reply; a malformed
// or oversized frame gets one error and then the connection closes,
// since the stream can no longer be trusted to be frame-aligned.
func (s *Server) replyReadError(writer *protocol.FrameWriter, err error) {
	switch {
	case errors.Is(err, io.EOF):
		return
	case isTimeout(err):
		s.logger.Debug("client idle past deadline, closing")
		return
	}

	var tooLarge *protocol.MessageTooLargeError
	var syntax *json.SyntaxError
	var unmarshal *json.UnmarshalTypeError
	switch {
	case errors.As(err, &tooLarge):
		s.reply(writer, "", protocol.Error(protocol.CodeInvalidRequest, err.Error()))
	case errors.As(err, &syntax), errors.As(err, &unmarshal), errors.Is(err, protocol.ErrEmptyMessage):
		s.reply(writer, "", protocol.Error(protocol.CodeInvalidRequest, err.Error()))
	default:
		s.logger.Debug("connection read failed", "error", err)
	}
}

func (s *Server) reply(writer *protocol.FrameWriter, requestID string, resp protocol.Response) bool {
	if err := writer.WriteMessage(protocol.NewEnvelope(requestID, resp)); err != nil {
		s.logger.Debug("write response failed", "error", err)
		return false
	}
	return true
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// socketAnswers dials the socket to see whether a daemon is still
// behind it.
func socketAnswers(path string) bool {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
