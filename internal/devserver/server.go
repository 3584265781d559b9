// Package devserver is an in-memory stand-in for the chat backend: the
// REST API under /api/v1 and the per-room websocket endpoint. It exists
// for local development and end-to-end tests.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-chatclient/internal/config"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"
)

const (
	APIPrefix = "/api/v1"

	joinCodeAttempts = 10
)

type Server struct {
	log              zerolog.Logger
	repo             Repository
	hub              *Hub
	srv              *http.Server
	uploads          *uploadStore
	validate         *validator.Validate
	signingKey       []byte
	allowedOrigins   []string
	tokenTTL         time.Duration
	generateJoinCode func() (string, error)
}

func NewServer(logger zerolog.Logger, hub *Hub, repo Repository, cfg *config.ServerConfig) *Server {
	s := &Server{
		log:              logger.With().Str("component", "devserver").Logger(),
		repo:             repo,
		hub:              hub,
		uploads:          newUploadStore(),
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		signingKey:       cfg.SigningKey,
		allowedOrigins:   cfg.AllowedOrigins,
		tokenTTL:         defaultTokenTTL,
		generateJoinCode: newJoinCode,
	}

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: s.routes(),
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.healthCheck)
	r.Get("/uploads/{name}", s.serveUpload)
	r.Get("/ws/{room_id}", s.serveWs)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Post("/auth/register", s.createAccount)
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/users/me", s.currentUser)
			r.Get("/rooms/", s.listRooms)
			r.Post("/rooms/", s.createRoom)
			r.Post("/rooms/dm", s.openDM)
			r.Post("/rooms/join/{code}", s.joinRoom)
			r.Get("/rooms/{room_id}", s.getRoom)
			r.Get("/messages/rooms/{room_id}/messages", s.listMessages)
			r.Delete("/messages/rooms/{room_id}/messages/clear", s.clearRoom)
			r.Delete("/messages/messages/{message_id}", s.deleteMessage)
			r.Post("/uploads/", s.upload)
		})
	})

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(s.allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(r)

	return s.errorHandler(h)
}

// Handler exposes the routes for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting server")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// newJoinCode returns an alphanumeric short id.
func newJoinCode() (string, error) {
	for range joinCodeAttempts {
		sid, err := shortid.Generate()
		if err != nil {
			return "", err
		}
		if isAlphanumeric(sid) {
			return sid, nil
		}
	}

	return "", fmt.Errorf("no alphanumeric join code after %d attempts", joinCodeAttempts)
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9') {
			return false
		}
	}
	return s != ""
}
