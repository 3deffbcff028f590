// Package ui serves the session API used by editor front ends: a JSON API
// over the session manager plus a datastar SSE stream of session snapshots.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/pine/internal/session"
)

// Server is the session API server.
type Server struct {
	manager      *session.Manager
	sessionStore *sessions.CookieStore
	port         int
	logger       *slog.Logger
}

// Config holds configuration for the server.
type Config struct {
	Manager *session.Manager
	Port    int
	// SessionSecret signs the cookie naming the browser's current session.
	// A random key is used when empty, so cookies do not survive restarts.
	SessionSecret string
	Logger        *slog.Logger
}

// NewServer creates a new server instance.
func NewServer(cfg Config) *Server {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
	}
	sessionStore := sessions.NewCookieStore(secret)
	sessionStore.MaxAge(86400) // 1 day
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		manager:      cfg.Manager,
		sessionStore: sessionStore,
		port:         cfg.Port,
		logger:       logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		requestLogger(s.logger),
	)
	SetupRoutes(r, NewHandlers(s.manager, s.sessionStore, s.logger))
	return r
}

// Serve starts the server and blocks until the context is cancelled. Every
// open session is closed on the way out.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting session server", "addr", ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down session server...")
		s.manager.CloseAll()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
