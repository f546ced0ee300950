package server

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/ubermorgenland/yas-mcp/pkg/auth"
	"github.com/ubermorgenland/yas-mcp/pkg/mcp/processor"
	"github.com/ubermorgenland/yas-mcp/pkg/mcp/protocol"
	"github.com/ubermorgenland/yas-mcp/pkg/memory"
	appserver "github.com/ubermorgenland/yas-mcp/pkg/server"
	"github.com/ubermorgenland/yas-mcp/pkg/transport"
)

const (
	headerKeySessionID = "x-session-id"

	// DefaultMaxBodyBytes caps an inbound JSON-RPC message
	DefaultMaxBodyBytes = 4 << 20

	// gzipThreshold is the smallest /mcp response worth compressing
	gzipThreshold = 1024
)

// Option configures an HTTPServer
type Option func(*HTTPServer)

// WithServiceName sets the name reported by /health
func WithServiceName(name string) Option {
	return func(s *HTTPServer) {
		s.service = name
	}
}

// WithToolCount sets the function /health uses to report the tool count
func WithToolCount(fn func() int) Option {
	return func(s *HTTPServer) {
		s.toolCount = fn
	}
}

// WithReloadFunc enables POST /reload
func WithReloadFunc(fn func() (int, error)) Option {
	return func(s *HTTPServer) {
		s.reload = fn
	}
}

// WithAllowOrigins restricts CORS origins. Empty allows any origin.
func WithAllowOrigins(origins []string) Option {
	return func(s *HTTPServer) {
		s.allowOrigins = origins
	}
}

// WithHeartbeatInterval sets how often SSE streams receive a ping comment.
// Zero disables heartbeats.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(s *HTTPServer) {
		s.heartbeat = interval
	}
}

// WithMaxBodyBytes caps inbound message size
func WithMaxBodyBytes(n int64) Option {
	return func(s *HTTPServer) {
		s.maxBodyBytes = n
	}
}

// WithReadTimeout bounds reading a request, headers included
func WithReadTimeout(d time.Duration) Option {
	return func(s *HTTPServer) {
		s.readTimeout = d
	}
}

// WithTransportWrapper decorates the per-request transport, e.g. to record
// a transcript
func WithTransportWrapper(wrap func(transport.Transport) transport.Transport) Option {
	return func(s *HTTPServer) {
		s.wrapTransport = wrap
	}
}

// HTTPServer exposes a processor over HTTP and SSE
type HTTPServer struct {
	processor *processor.Processor
	logger    *log.Logger
	sessions  *SessionStore

	service       string
	toolCount     func() int
	reload        func() (int, error)
	allowOrigins  []string
	heartbeat     time.Duration
	maxBodyBytes  int64
	readTimeout   time.Duration
	wrapTransport func(transport.Transport) transport.Transport

	mu         sync.Mutex
	httpServer *http.Server
	closing    chan struct{}
	closeOnce  sync.Once
}

// NewHTTPServer creates a server around p
func NewHTTPServer(p *processor.Processor, logger *log.Logger, opts ...Option) *HTTPServer {
	s := &HTTPServer{
		processor:    p,
		logger:       logger,
		sessions:     NewSessionStore(),
		service:      "yas-mcp",
		toolCount:    func() int { return 0 },
		maxBodyBytes: DefaultMaxBodyBytes,
		closing:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sessions exposes the session store
func (s *HTTPServer) Sessions() *SessionStore {
	return s.sessions
}

// Handler returns the routed handler wrapped in CORS and request logging
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/message", s.handleMessage)
	mux.HandleFunc("/session", s.handleSession)
	mux.Handle("/health", appserver.HandleHealth(s.logger, s.service, s.toolCount))
	if s.reload != nil {
		mux.Handle("/reload", appserver.HandleReload(s.logger, s.reload))
	}
	return appserver.CORSMiddleware(s.allowOrigins, appserver.LoggingMiddleware(s.logger, mux))
}

// Start listens on addr until Shutdown. A clean shutdown returns nil.
func (s *HTTPServer) Start(addr string) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return appserver.Wrap(err, appserver.ErrorTypeNetwork, "HTTP server failed")
	}
	return nil
}

// Shutdown ends every SSE stream and drains in-flight requests
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	s.sessions.CloseAll()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// readBody reads a JSON-RPC message from r
func (s *HTTPServer) readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return memory.Default.ReadAll(r.Body, s.maxBodyBytes)
}

// requestContext carries caller credentials to the backend call
func requestContext(r *http.Request) context.Context {
	return auth.WithAuthContext(r.Context(), auth.FromRequest(r))
}

// exchange runs one message through the processor
func (s *HTTPServer) exchange(ctx context.Context, body []byte) ([]byte, error) {
	ht := transport.NewHTTPTransport(body)
	var t transport.Transport = ht
	if s.wrapTransport != nil {
		t = s.wrapTransport(ht)
	}
	if err := transport.NewRunner(t, s.processor, s.logger).Run(ctx); err != nil {
		return nil, err
	}
	return ht.Response(), nil
}

// isInitialize peeks at the method of body
func isInitialize(body []byte) bool {
	req, err := protocol.ParseRequest(body)
	return err == nil && req.Method == protocol.MethodInitialize
}

func (s *HTTPServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := s.readBody(r)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read request body")
		s.writeJSON(w, r, mustMarshal(protocol.ParseErrorResponse(err)))
		return
	}

	sessionID := r.Header.Get(headerKeySessionID)
	if sessionID == "" && isInitialize(body) {
		sessionID = s.sessions.Create().ID
		s.logger.Info().Str("session", sessionID).Msg("session created")
	}
	if sessionID != "" {
		w.Header().Set(headerKeySessionID, sessionID)
	}

	out, err := s.exchange(requestContext(r), body)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to process message")
		out = mustMarshal(protocol.NewErrorResponse(nil, protocol.CodeInternalError, "Internal error"))
	}
	if out == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	s.writeJSON(w, r, out)
}

// writeJSON writes a 200 JSON body, gzip-compressed when large and accepted
func (s *HTTPServer) writeJSON(w http.ResponseWriter, r *http.Request, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	if len(data) > gzipThreshold && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Vary", "Accept-Encoding")
		w.WriteHeader(http.StatusOK)
		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := gz.Write(data); err != nil {
			s.logger.Error().Err(err).Msg("compression error")
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to write response")
	}
}

func (s *HTTPServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	session := s.sessions.Create()
	defer func() {
		if err := s.sessions.Delete(session.ID); err == nil {
			s.logger.Debug().Str("session", session.ID).Msg("stream session removed")
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(headerKeySessionID, session.ID)
	w.WriteHeader(http.StatusOK)

	if err := writeSSEEvent(w, "endpoint", []byte("/message?sessionId="+session.ID)); err != nil {
		s.logger.Error().Err(err).Msg("failed to write endpoint event")
		return
	}
	flusher.Flush()
	s.logger.Info().Str("session", session.ID).Msg("SSE stream opened")

	var tick <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	// Only this goroutine writes to w.
	for {
		select {
		case msg := <-session.outbound:
			if err := writeSSEEvent(w, "message", msg); err != nil {
				s.logger.Error().Err(err).Msg("failed to write SSE event")
				return
			}
			flusher.Flush()
		case <-tick:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-session.done:
			return
		case <-s.closing:
			return
		case <-r.Context().Done():
			s.logger.Info().Str("session", session.ID).Msg("SSE stream closed by client")
			return
		}
	}
}

func (s *HTTPServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, err := s.sessions.Get(r.URL.Query().Get("sessionId"))
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	body, err := s.readBody(r)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read request body")
		if perr := session.Push(r.Context(), mustMarshal(protocol.ParseErrorResponse(err))); perr != nil {
			s.logger.Warn().Err(perr).Str("session", session.ID).Msg("failed to push response")
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	out, err := s.exchange(requestContext(r), body)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to process message")
		out = mustMarshal(protocol.NewErrorResponse(nil, protocol.CodeInternalError, "Internal error"))
	}
	if out != nil {
		if err := session.Push(r.Context(), out); err != nil {
			s.logger.Warn().Err(err).Str("session", session.ID).Msg("failed to push response")
			s.writeSessionError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.Header.Get(headerKeySessionID)
	if err := s.sessions.Delete(id); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.logger.Info().Str("session", id).Msg("session deleted")
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPServer) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidSessionID):
		http.Error(w, "Missing session ID", http.StatusBadRequest)
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionClosed):
		http.Error(w, "Session not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeSSEEvent(w io.Writer, eventType string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	return nil
}
