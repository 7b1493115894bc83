package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HandlerFunc processes RPC params and returns a result or structured error.
type HandlerFunc func(context.Context, json.RawMessage) (any, *Error)

// SendFunc pushes one event frame on an open stream.
type SendFunc func(event string, payload any) error

// StreamFunc serves a long-lived request. The connection stays open until
// it returns; ctx is cancelled when the client goes away or the server
// stops.
type StreamFunc func(ctx context.Context, params json.RawMessage, send SendFunc) *Error

// Server listens for IPC requests over Unix sockets.
type Server struct {
	ln       net.Listener
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	streams  map[string]StreamFunc
	closed   bool
	cancel   context.CancelFunc
	logger   zerolog.Logger
}

// NewServer constructs an IPC server.
func NewServer(logger zerolog.Logger) *Server {
	return &Server{
		handlers: make(map[string]HandlerFunc),
		streams:  make(map[string]StreamFunc),
		logger:   logger,
	}
}

// Register installs a handler for a method.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
}

// RegisterStream installs a streaming handler for a method.
func (s *Server) RegisterStream(method string, handler StreamFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[method] = handler
}

// Start begins accepting connections on endpoint.
func (s *Server) Start(ctx context.Context, endpoint string) error {
	if s == nil {
		return errors.New("nil server")
	}
	ln, err := net.Listen("unix", endpoint)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ln = ln
	s.cancel = cancel
	s.mu.Unlock()
	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return
			}
			s.logger.Warn().Err(err).Msg("accept error")
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		payload, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug().Err(err).Msg("read frame")
			}
			return
		}
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			s.writeError(conn, req.ID, CodeInvalidRequest, "invalid json", nil)
			continue
		}
		traceID := newTraceID()
		log := s.logger.With().Str("method", req.Type).Str("traceId", traceID).Logger()

		if stream := s.lookupStream(req.Type); stream != nil {
			s.serveStream(ctx, conn, req, traceID, stream, log)
			return
		}
		handler := s.lookupHandler(req.Type)
		if handler == nil {
			s.writeError(conn, req.ID, CodeInvalidRequest, "unknown method", map[string]any{"method": req.Type, "traceId": traceID})
			continue
		}
		start := time.Now()
		result, rpcErr := handler(log.WithContext(ctx), req.Params)
		resp := Response{ID: req.ID, TraceID: traceID}
		if rpcErr != nil {
			log.Info().Str("code", rpcErr.Code).Str("error", rpcErr.Message).Msg("request failed")
			resp.Error = rpcErr
		} else {
			raw, err := json.Marshal(result)
			if err != nil {
				s.writeError(conn, req.ID, CodeInternal, err.Error(), map[string]any{"traceId": traceID})
				continue
			}
			resp.OK = true
			resp.Result = raw
		}
		log.Debug().Dur("took", time.Since(start)).Msg("request served")
		if err := s.writeResponse(conn, resp); err != nil {
			return
		}
	}
}

// serveStream acknowledges req, then hands the connection to stream until
// it returns. A reader goroutine watches for the client closing its end.
func (s *Server) serveStream(ctx context.Context, conn net.Conn, req Request, traceID string, stream StreamFunc, log zerolog.Logger) {
	if err := s.writeResponse(conn, Response{ID: req.ID, OK: true, TraceID: traceID}); err != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		_, _ = io.Copy(io.Discard, conn)
	}()

	send := func(event string, payload any) error {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return s.writeResponse(conn, Response{ID: req.ID, OK: true, Event: event, Result: raw, TraceID: traceID})
	}
	log.Debug().Msg("stream opened")
	if rpcErr := stream(log.WithContext(ctx), req.Params, send); rpcErr != nil {
		_ = s.writeResponse(conn, Response{ID: req.ID, Error: rpcErr, TraceID: traceID})
	}
	log.Debug().Msg("stream closed")
}

func (s *Server) lookupHandler(method string) HandlerFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[method]
}

func (s *Server) lookupStream(method string) StreamFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streams[method]
}

func (s *Server) writeResponse(conn net.Conn, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return writeFrame(conn, payload)
}

func (s *Server) writeError(conn net.Conn, id, code, msg string, details map[string]any) {
	resp := Response{ID: id, TraceID: newTraceID()}
	resp.Error = &Error{Code: code, Message: msg, Details: details}
	_ = s.writeResponse(conn, resp)
}

// Stop shuts down the listener and ends open streams.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func newTraceID() string {
	return fmt.Sprintf("ipc-%d", time.Now().UnixNano())
}

// Errorf helps build protocol errors.
func Errorf(code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}
