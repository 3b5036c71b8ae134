// Package control is the HTTP/SSE/WebSocket surface that drives a
// flowruntime instance: component discovery, graph CRUD, start/stop,
// a metrics snapshot stream, and a binary video frame stream — the
// same responsibilities the teacher's gateway/http and output/websocket
// packages split across a NATS-backed request/reply gateway and a
// NATS-fed WebSocket broadcaster, collapsed here onto the in-process
// graph and scheduler this runtime actually has.
package control

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowruntime/flowruntime/component"
	"github.com/flowruntime/flowruntime/errors"
	"github.com/flowruntime/flowruntime/graph"
	"github.com/flowruntime/flowruntime/metric"
	"github.com/flowruntime/flowruntime/runtime"
)

// Server is the control surface: it binds a component registry, a graph,
// a scheduler, and a metrics engine to a set of HTTP handlers.
type Server struct {
	registry *component.Registry
	graph    *graph.Graph
	sched    *runtime.Scheduler
	engine   *metric.Engine
	metrics  *metric.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	running bool

	// baseCtx is the long-lived context node task goroutines are derived
	// from — the process's shutdown-signal context, not any individual
	// request's. POST /graph/start must never root a node's lifetime in
	// r.Context(): net/http cancels that the instant handleStartGraph
	// returns, which would stop every node moments after starting it.
	baseCtx context.Context

	httpServer *http.Server
}

// Deps bundles the components a Server wires together. Built once by
// the process entry point and handed to NewServer.
type Deps struct {
	Registry *component.Registry
	Graph    *graph.Graph
	Scheduler *runtime.Scheduler
	Engine   *metric.Engine
	Metrics  *metric.Registry
	Logger   *slog.Logger

	// BaseContext roots every node task StartAll spawns; it should be
	// the process's shutdown-signal context (e.g. signal.NotifyContext's
	// result in main.go), not a per-request context. Defaults to
	// context.Background() when nil, which never cancels on its own.
	BaseContext context.Context
}

// NewServer builds a Server and its http.Handler, ready to be wrapped in
// an *http.Server by the caller (or via ListenAndServe below).
func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx := d.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Server{
		registry: d.Registry,
		graph:    d.Graph,
		sched:    d.Scheduler,
		engine:   d.Engine,
		metrics:  d.Metrics,
		logger:   logger,
		baseCtx:  baseCtx,
	}
}

// Handler returns the complete routed http.Handler for this server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /component", s.handleListComponents)

	mux.HandleFunc("GET /graph/nodes", s.handleListNodes)
	mux.HandleFunc("POST /graph/nodes", s.handleCreateNode)
	mux.HandleFunc("DELETE /graph/nodes/{id}", s.handleDeleteNode)

	mux.HandleFunc("GET /graph/edges", s.handleListEdges)
	mux.HandleFunc("POST /graph/edges", s.handleCreateEdge)
	mux.HandleFunc("DELETE /graph/edges", s.handleDeleteEdge)

	mux.HandleFunc("POST /graph/start", s.handleStartGraph)
	mux.HandleFunc("POST /graph/stop", s.handleStopGraph)

	mux.HandleFunc("GET /metrics", s.handleMetricsSSE)
	mux.HandleFunc("GET /metrics/prom", promhttp.HandlerFor(s.metrics.Prometheus(), promhttp.HandlerOpts{}).ServeHTTP)
	mux.HandleFunc("GET /frames", s.handleFramesSSE)
	mux.HandleFunc("GET /video/ws/{node_id}", s.handleVideoWS)

	return mux
}

// ListenAndServe starts the HTTP listener on addr, blocking until ctx is
// cancelled or the server fails, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	return s.serve(ctx, &http.Server{Addr: addr, Handler: s.Handler()})
}

// ListenAndServeTLS starts the HTTPS listener on addr using the given
// tls.Config (e.g. an ACME-issued certificate), blocking until ctx is
// cancelled or the server fails.
func (s *Server) ListenAndServeTLS(ctx context.Context, addr string, tlsCfg *tls.Config) error {
	return s.serve(ctx, &http.Server{Addr: addr, Handler: s.Handler(), TLSConfig: tlsCfg})
}

// ListenAndServeTLSFile starts the HTTPS listener on addr using a static
// certificate/key file pair.
func (s *Server) ListenAndServeTLSFile(ctx context.Context, addr, certFile, keyFile string) error {
	return s.serve(ctx, &http.Server{Addr: addr, Handler: s.Handler()}, certFile, keyFile)
}

func (s *Server) serve(ctx context.Context, httpServer *http.Server, certAndKey ...string) error {
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		var err error
		switch {
		case len(certAndKey) == 2:
			err = httpServer.ListenAndServeTLS(certAndKey[0], certAndKey[1])
		case httpServer.TLSConfig != nil:
			err = httpServer.ListenAndServeTLS("", "")
		default:
			err = httpServer.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully stops the HTTP listener started by one of the
// ListenAndServe* methods, or is a no-op if none is running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

// writeJSON writes v as a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standardized {error, detail} body (spec §7) for
// err, deriving the HTTP status from its Kind when err is a *KindError,
// and falling back to 500 for anything else.
func writeError(w http.ResponseWriter, err error) {
	if ke, ok := errors.As(err); ok {
		writeJSON(w, ke.HTTPStatus(), map[string]string{
			"error":  string(ke.Kind),
			"detail": ke.Message,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":  "Internal",
		"detail": err.Error(),
	})
}

// decodeJSON reads and decodes r's body into v, returning an InvalidArgs
// KindError on any failure so handlers can pass it straight to writeError.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.New(errors.InvalidArgs, "invalid request body: %v", err)
	}
	return nil
}

// newNodeID generates a node id when the client omits one on
// POST /graph/nodes, grounded on the teacher's request-id generation
// in gateway/http/http.go but using a UUID rather than a hex nonce,
// since node ids are long-lived identifiers, not single-request tokens.
func newNodeID(typeName string) string {
	return fmt.Sprintf("%s-%s", typeName, uuid.NewString()[:8])
}
