// Package api exposes the HTTP surface: workspace CRUD, the run/input/cancel
// command routes, the SSE event stream, and the operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zenithlabs/nexus/internal/engine"
	"github.com/zenithlabs/nexus/internal/executor"
	"github.com/zenithlabs/nexus/internal/store"
	"github.com/zenithlabs/nexus/internal/terminal"
	"github.com/zenithlabs/nexus/internal/workspace"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second

	userIDHeader = "X-User-Id"
)

type ctxKey int

const userIDKey ctxKey = 0

// Server wraps the chi router and application dependencies. Controllers are
// created lazily, one per user, and live for the process lifetime.
type Server struct {
	router     *chi.Mux
	store      store.Store
	registry   *executor.Registry
	dispatcher *engine.Dispatcher
	broker     *terminal.Broker
	logger     *slog.Logger
	addr       string

	mu          sync.Mutex
	controllers map[string]*workspace.Controller
	streams     map[string]int
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, s store.Store, reg *executor.Registry, disp *engine.Dispatcher, broker *terminal.Broker, logger *slog.Logger) *Server {
	srv := &Server{
		router:      chi.NewRouter(),
		store:       s,
		registry:    reg,
		dispatcher:  disp,
		broker:      broker,
		logger:      logger,
		addr:        addr,
		controllers: make(map[string]*workspace.Controller),
		streams:     make(map[string]int),
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", userIDHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/v1/backends", s.handleListBackends)

	s.router.Route("/v1/workspace", func(r chi.Router) {
		r.Use(s.identityMiddleware)
		r.Get("/", s.handleGetWorkspace)
		r.Put("/files", s.handleSaveFiles)
	})

	s.router.Route("/v1/session", func(r chi.Router) {
		r.Use(s.identityMiddleware)
		r.Post("/run", s.handleRun)
		r.Post("/input", s.handleInput)
		r.Post("/cancel", s.handleCancel)
		r.Get("/events", s.handleEvents)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// identityMiddleware extracts the caller identity from the X-User-Id header.
// Token issuance and verification are handled upstream; by the time a
// request reaches this service the header carries a trusted identity.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userIDHeader)
		if userID == "" {
			s.writeError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the caller identity placed by identityMiddleware.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// controllerFor returns the user's controller, creating and loading it on
// first access.
func (s *Server) controllerFor(ctx context.Context, uid string) (*workspace.Controller, error) {
	s.mu.Lock()
	ctrl, ok := s.controllers[uid]
	if !ok {
		ctrl = workspace.NewController(uid, s.store, s.dispatcher, s.broker, s.logger)
		s.controllers[uid] = ctrl
	}
	s.mu.Unlock()

	if _, err := ctrl.Load(ctx); err != nil {
		return nil, err
	}
	return ctrl, nil
}

// streamOpened records one more open event stream for the user.
func (s *Server) streamOpened(uid string) {
	s.mu.Lock()
	s.streams[uid]++
	s.mu.Unlock()
}

// streamClosed records an event stream closing and reports whether it was
// the user's last one. Only the last close counts as a disconnect; a user
// with a second tab still attached keeps their running session.
func (s *Server) streamClosed(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[uid]--
	if s.streams[uid] <= 0 {
		delete(s.streams, uid)
		return true
	}
	return false
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
