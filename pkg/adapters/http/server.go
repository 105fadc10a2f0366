// Package http serves a workspace over HTTP: the filtered graph, the filter
// stack and its producers, a server-sent event stream of graph changes, and
// Prometheus metrics.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/cell"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes one workspace.
type Server struct {
	ws      *strata.Workspace
	metrics *observability.Metrics
	streams *StreamManager
	logger  *slog.Logger

	sub cell.Subscription
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves m on /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a Server and starts streaming changes of the filtered
// graph to event subscribers. Call Close to stop.
func NewServer(ws *strata.Workspace, opts ...Option) *Server {
	s := &Server{
		ws:      ws,
		streams: NewStreamManager(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams.logger = s.logger
	s.sub = ws.Filtered().Bind(func(next, prev *graph.Graph) {
		delta := graph.Diff(prev, next)
		if delta == nil {
			return
		}
		data, err := json.Marshal(delta)
		if err != nil {
			s.logger.Error("graph delta encode failed", "error", err)
			return
		}
		s.streams.Broadcast(string(data))
	})
	return s
}

// Close stops streaming graph changes.
func (s *Server) Close() {
	s.ws.Filtered().Unbind(s.sub)
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	r.Get("/graph", s.getGraph)
	r.Get("/graph/full", s.getFullGraph)
	r.Get("/events", s.subscribeEvents)

	r.Route("/filters", func(r chi.Router) {
		r.Get("/", s.getFilters)
		r.Post("/", s.addFilter)
		r.Delete("/", s.resetFilters)
		r.Put("/current", s.replaceCurrentFilter)
		r.Delete("/current", s.deleteCurrentFilter)
		r.Post("/past/{index}", s.openPastFilter)
		r.Post("/future/{index}", s.openFutureFilter)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StackResponse describes the filter stack and the graph it produces.
type StackResponse struct {
	Stack         filter.Stack `json:"stack"`
	Nodes         int          `json:"nodes"`
	Edges         int          `json:"edges"`
	PipelineError string       `json:"pipeline_error,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":        "strata-http",
		"version":    strings.TrimSpace(strata.Version),
		"transforms": s.ws.Evaluator().Transforms().Names(),
	})
}

func (s *Server) getGraph(w http.ResponseWriter, _ *http.Request) {
	s.ws.Flush()
	s.writeJSON(w, http.StatusOK, s.ws.Filtered().Get())
}

func (s *Server) getFullGraph(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ws.Dataset().Get())
}

func (s *Server) getFilters(w http.ResponseWriter, _ *http.Request) {
	s.writeStack(w)
}

func (s *Server) addFilter(w http.ResponseWriter, r *http.Request) {
	def, ok := s.decodeFilter(w, r)
	if !ok {
		return
	}
	s.respond(w, s.ws.AddFilter(def))
}

func (s *Server) replaceCurrentFilter(w http.ResponseWriter, r *http.Request) {
	def, ok := s.decodeFilter(w, r)
	if !ok {
		return
	}
	s.respond(w, s.ws.ReplaceCurrentFilter(def))
}

func (s *Server) deleteCurrentFilter(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, s.ws.DeleteCurrentFilter())
}

func (s *Server) resetFilters(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, s.ws.ResetFilters())
}

func (s *Server) openPastFilter(w http.ResponseWriter, r *http.Request) {
	i, ok := s.index(w, r)
	if !ok {
		return
	}
	s.respond(w, s.ws.OpenPastFilter(i))
}

func (s *Server) openFutureFilter(w http.ResponseWriter, r *http.Request) {
	i, ok := s.index(w, r)
	if !ok {
		return
	}
	s.respond(w, s.ws.OpenFutureFilter(i))
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "index must be an integer"})
		return 0, false
	}
	return i, true
}

func (s *Server) decodeFilter(w http.ResponseWriter, r *http.Request) (filter.Definition, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return nil, false
	}
	def, err := filter.Decode(body)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return def, true
}

func (s *Server) respond(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeStack(w)
}

func (s *Server) writeStack(w http.ResponseWriter) {
	s.ws.Flush()
	g := s.ws.Filtered().Get()
	resp := StackResponse{
		Stack: s.ws.Filters().Get(),
		Nodes: g.Order(),
		Edges: g.Size(),
	}
	if err := s.ws.Err(); err != nil {
		resp.PipelineError = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// StatusFor maps workspace errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, filter.ErrIndexOutOfBounds), errors.Is(err, filter.ErrEmptyStack):
		return http.StatusConflict
	case errors.Is(err, filter.ErrInvalidFilter),
		errors.Is(err, filter.ErrUnknownKind),
		errors.Is(err, filter.ErrPredicate),
		errors.Is(err, filter.ErrSerialization):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	} else {
		s.logger.Debug("request rejected", "status", status, "error", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("response encode failed", "error", err)
		http.Error(w, `{"error":"response encode failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// subscribeEvents streams graph deltas as server-sent events.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: delta\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// StreamManager fans messages out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan string]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a buffered channel. The returned func unregisters and
// closes it.
func (sm *StreamManager) Subscribe() (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	sm.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(sm.subscribers, ch)
			close(ch)
		})
	}
}

// Broadcast sends msg to every subscriber. Slow clients miss messages.
func (sm *StreamManager) Broadcast(msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping message")
		}
	}
}

// Subscribers returns the number of open streams.
func (sm *StreamManager) Subscribers() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}
