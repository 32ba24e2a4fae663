package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"studio-sync-engine/internal/config"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/infra/logging"
	"studio-sync-engine/internal/usecase"
)

// SessionDirectory hands out per-user engines, creating and rehydrating
// them on demand. application.SessionManager is the production
// implementation.
type SessionDirectory interface {
	Engine(ctx context.Context, userID string) (usecase.SessionTracker, error)
	CloseSession(userID string)
}

type Server struct {
	sessions  SessionDirectory
	catalog   usecase.CatalogUseCase
	account   usecase.AccountUseCase
	delivery  usecase.ResultDelivery
	hub       *Hub
	auth      *AuthManager
	notifier  adapter.Notifier
	issueKey  string
	heartbeat time.Duration
	log       *zerolog.Logger

	srv *http.Server
}

func NewServer(
	cfg config.GatewayConfig,
	sessions SessionDirectory,
	catalog usecase.CatalogUseCase,
	account usecase.AccountUseCase,
	delivery usecase.ResultDelivery,
	hub *Hub,
	auth *AuthManager,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
) *Server {
	s := &Server{
		sessions:  sessions,
		catalog:   catalog,
		account:   account,
		delivery:  delivery,
		hub:       hub,
		auth:      auth,
		notifier:  notifier,
		issueKey:  cfg.IssueKey,
		heartbeat: cfg.SSEHeartbeat,
		log:       logger,
	}
	if s.heartbeat <= 0 {
		s.heartbeat = 25 * time.Second
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the gateway router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(s.log))
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/v1/session", s.handleSessionOpen)

	// Interactive API, bounded per request.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(Timeout(30 * time.Second))
		r.Get("/api/v1/session", snapshotHandler(s.sessions))
		r.Delete("/api/v1/session", s.handleSessionClose)
		r.Post("/api/v1/stories", storySubmitHandler(s.sessions))
		r.Post("/api/v1/narrations", narrationSubmitHandler(s.sessions))
		r.Get("/api/v1/history", historyHandler(s.sessions))
		r.Get("/api/v1/voices", voicesHandler(s.catalog))
		r.Get("/api/v1/account", accountHandler(s.account))
		r.Get("/api/v1/media/{name}", mediaHandler(s.delivery))
	})

	// The stream outlives any sane request timeout, so it gets none.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/v1/events", s.handleEvents)
	})

	return r
}

// authMiddleware resolves the session token and stashes the user on the
// request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			s.log.Error().Msg("auth manager is not configured")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := withSessionUser(r.Context(), claims.UserID)
		ctx = logging.WithUserID(ctx, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start blocks serving the gateway until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("gateway listening")
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes the stream hub first so event connections drain, then
// stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()
	return s.srv.Shutdown(ctx)
}
