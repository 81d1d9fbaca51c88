// Package portal exposes the daemon's HTTP API: runtime lifecycle
// operations, the build session, and devcontainer import.
package portal

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/forgekeeper/forgekeeper/internal/build"
	"github.com/forgekeeper/forgekeeper/internal/config"
	"github.com/forgekeeper/forgekeeper/internal/lifecycle"
)

// Server wires the lifecycle manager and build session into HTTP handlers.
type Server struct {
	mgr        *lifecycle.Manager
	session    *build.Session
	envPath    string
	profileDir string
	logger     *log.Logger

	mu    sync.Mutex
	setup config.Setup // last payload saved by the wizard
}

// New creates a portal server. logger may be nil.
func New(mgr *lifecycle.Manager, session *build.Session, cfg *config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{
		mgr:        mgr,
		session:    session,
		envPath:    cfg.EnvFilePath(),
		profileDir: cfg.ProfileDir,
		logger:     logger.WithPrefix("portal"),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/forgekeeper", func(r chi.Router) {
		r.Get("/runtime/list", s.handleRuntimeList)
		r.Post("/runtime", s.handleRuntimeAction)
		r.Post("/setup", s.handleSaveSetup)
		r.Post("/control", s.handleControl)
	})

	r.Route("/setup", func(r chi.Router) {
		r.Post("/build", s.handleBuildStart)
		r.Get("/build-log", s.handleBuildLog)
		r.Post("/stop", s.handleBuildStop)
		r.Post("/cleanup", s.handleCleanup)
		r.Post("/import", s.handleImport)
	})

	return r
}

// ListenAndServe runs the portal until the server errors out.
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("portal listening", "addr", addr)
	return srv.ListenAndServe()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// savedSetup returns a copy of the last wizard payload.
func (s *Server) savedSetup() config.Setup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setup
}

func (s *Server) saveSetup(setup config.Setup) {
	s.mu.Lock()
	s.setup = setup
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error   string   `json:"error"`
	LogTail []string `json:"log_tail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
