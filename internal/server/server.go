// Package server implements the HTTP front-end: one configured script served
// at POST /, a websocket variant at /ws, liveness at /healthz and Prometheus
// metrics at /metrics.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumahq/luma/internal/lua"
	"github.com/lumahq/luma/internal/value"
)

// Server serves one script over HTTP. The script can be swapped at runtime
// for hot reload; everything else is fixed at construction.
type Server struct {
	mu         sync.RWMutex
	eval       *lua.Evaluation
	logger     *slog.Logger
	metrics    *Metrics
	workers    chan struct{}
	mux        *http.ServeMux
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMaxWorkers bounds concurrent evaluations. Values below one are clamped
// to a single worker.
func WithMaxWorkers(n int) Option {
	return func(s *Server) {
		if n < 1 {
			n = 1
		}
		s.workers = make(chan struct{}, n)
	}
}

// New creates a server around a compiled script.
func New(eval *lua.Evaluation, opts ...Option) *Server {
	s := &Server{
		eval:    eval,
		logger:  nopLogger,
		metrics: NewMetrics(),
		workers: make(chan struct{}, 1),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start listens on addr and serves until Shutdown. Port zero picks a free
// port; the resolved address is logged.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.httpServer = &http.Server{Handler: s}
	s.logger.Info("http server listening", "addr", listener.Addr().String())
	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// SetScript swaps the served script. Evaluations already in flight keep the
// script they started with.
func (s *Server) SetScript(eval *lua.Evaluation) {
	s.mu.Lock()
	s.eval = eval
	s.mu.Unlock()
}

func (s *Server) script() *lua.Evaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eval
}

// runScript evaluates the configured script against one input, bounded by the
// worker semaphore, and records metrics for the attempt.
func (s *Server) runScript(ctx context.Context, input io.Reader, st *lua.State) (*lua.Outcome, error) {
	select {
	case s.workers <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.workers }()

	s.metrics.InFlight.Inc()
	defer s.metrics.InFlight.Dec()

	start := time.Now()
	outcome, err := s.script().Fork(input).EvaluateWithState(ctx, st)
	s.metrics.observe(lua.ErrorKind(err), time.Since(start))
	return outcome, err
}

// handleIndex evaluates the script with the request body as input. Success is
// 200 with the rendered value; any evaluation failure is 400 with an empty
// body, details only in the logs.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := uuid.NewString()
	w.Header().Set("X-Request-Id", id)
	logger := s.logger.With("request_id", id)

	st := &lua.State{Request: requestValue(r)}
	outcome, err := s.runScript(r.Context(), r.Body, st)
	if err != nil {
		logger.Error("script failed", "kind", lua.ErrorKind(err), "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	logger.Info("script evaluated", "duration", outcome.Duration)
	s.writeOutcome(w, st, outcome)
}

// handleHealthz reports liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

// requestValue builds the request metadata scripts observe on the core
// module. Header and query values are lists keyed by lowercased names, the
// same shape fetch responses use.
func requestValue(r *http.Request) map[string]any {
	headers := make(map[string]any, len(r.Header))
	for name, values := range r.Header {
		headers[strings.ToLower(name)] = valueList(values)
	}
	query := make(map[string]any)
	for name, values := range r.URL.Query() {
		query[name] = valueList(values)
	}
	return map[string]any{
		"method":  r.Method,
		"path":    r.URL.Path,
		"headers": headers,
		"query":   query,
	}
}

func valueList(values []string) []any {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	return list
}

// writeOutcome renders the script result, honoring a response override the
// script assigned to the core module: a table with optional status_code,
// headers and body fields.
func (s *Server) writeOutcome(w http.ResponseWriter, st *lua.State, outcome *lua.Outcome) {
	status := http.StatusOK
	body := []byte(value.Display(outcome.Value))

	if override, ok := st.Response.(map[string]any); ok {
		if code, ok := override["status_code"].(float64); ok {
			if c := int(code); c >= 100 && c < 600 {
				status = c
			}
		}
		if headers, ok := override["headers"].(map[string]any); ok {
			for name, v := range headers {
				w.Header().Set(name, value.Display(v))
			}
		}
		if b, ok := override["body"]; ok && b != nil {
			if str, isStr := b.(string); isStr {
				body = []byte(str)
			} else if encoded, err := value.EncodeJSON(b); err == nil {
				body = encoded
			}
		}
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(status)
	w.Write(body)
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
