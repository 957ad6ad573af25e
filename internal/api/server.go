package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/dedupe"
	"github.com/franz/dupe-janitor/internal/resolve"
	"github.com/franz/dupe-janitor/internal/session"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/gorilla/mux"
)

// Config holds the services exposed over HTTP
type Config struct {
	Engine      *cluster.Engine
	Sessions    *session.Manager
	Events      *session.ChannelSink
	Planner     *resolve.Planner
	Directories *resolve.DirectoryResolver
	Dedupe      *dedupe.Service
}

// Server is the HTTP and WebSocket adapter over the duplicate engine
type Server struct {
	engine      *cluster.Engine
	sessions    *session.Manager
	events      *session.ChannelSink
	planner     *resolve.Planner
	directories *resolve.DirectoryResolver
	dedupe      *dedupe.Service
	router      *mux.Router
}

// New creates a server and registers its routes
func New(cfg *Config) *Server {
	s := &Server{
		engine:      cfg.Engine,
		sessions:    cfg.Sessions,
		events:      cfg.Events,
		planner:     cfg.Planner,
		directories: cfg.Directories,
		dedupe:      cfg.Dedupe,
		router:      mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router.PathPrefix("/api").Subrouter()

	r.HandleFunc("/duplicates", s.handleDuplicates).Methods(http.MethodGet)

	r.HandleFunc("/scans", s.handleStartScan).Methods(http.MethodPost)
	r.HandleFunc("/scans", s.handleListScans).Methods(http.MethodGet)
	r.HandleFunc("/scans/{id}", s.handleScanStatus).Methods(http.MethodGet)
	r.HandleFunc("/scans/{id}", s.handleCancelScan).Methods(http.MethodDelete)
	r.HandleFunc("/scans/{id}/events", s.handleScanEvents).Methods(http.MethodGet)

	r.HandleFunc("/resolve/preview", s.handleResolvePreview).Methods(http.MethodPost)
	r.HandleFunc("/resolve/execute", s.handleResolveExecute).Methods(http.MethodPost)

	r.HandleFunc("/conflicts", s.handleConflicts).Methods(http.MethodGet)
	r.HandleFunc("/conflicts/preview", s.handleConflictPreview).Methods(http.MethodPost)
	r.HandleFunc("/conflicts/resolve", s.handleConflictResolve).Methods(http.MethodPost)

	r.HandleFunc("/compare", s.handleCompare).Methods(http.MethodGet)
	r.HandleFunc("/files/{id}", s.handleDeleteFile).Methods(http.MethodDelete)
	r.HandleFunc("/files/{id}/similar", s.handleSimilar).Methods(http.MethodGet)
	r.HandleFunc("/files/metadata", s.handleUpdateMetadata).Methods(http.MethodPatch)
	r.HandleFunc("/groups/keep", s.handleKeepOne).Methods(http.MethodPost)

	s.router.Use(logRequests)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.InfoLog("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		util.InfoLog("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		util.DebugLog("%s %s (%v)", r.Method, r.URL.Path, time.Since(start).Round(time.Microsecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.WarnLog("Failed to encode response: %v", err)
	}
}

// writeError maps sentinel errors to status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, util.ErrNotFound), errors.Is(err, util.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, util.ErrInvalidInput), errors.Is(err, util.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, util.ErrUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, util.ErrManagerClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		util.ErrorLog("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(util.ErrInvalidInput, err)
	}
	return nil
}
