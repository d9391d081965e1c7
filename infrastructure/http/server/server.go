// Package server exposes the chat actions over REST.
package server

import (
	"campus-chat/auth"
	"campus-chat/errors"
	"campus-chat/observability"
	"campus-chat/services"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Server struct {
	log         *slog.Logger
	chatService services.IChatService
	tokens      *auth.TokenManager
	metrics     *observability.Metrics
	live        http.Handler
	httpServer  *http.Server
}

// NewServer builds the REST surface. live serves the websocket upgrade on /ws.
func NewServer(log *slog.Logger, chatService services.IChatService,
	tokens *auth.TokenManager, metrics *observability.Metrics, live http.Handler) *Server {
	return &Server{
		log:         log,
		chatService: chatService,
		tokens:      tokens,
		metrics:     metrics,
		live:        live,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(protected chi.Router) {
		protected.Use(auth.Middleware(s.tokens, writeError))

		protected.Route("/rooms/{room}/messages", func(r chi.Router) {
			r.Post("/", s.wrap(s.sendMessage))
			r.Get("/", s.wrap(s.getMessages))
		})
		protected.Route("/messages/{id}", func(r chi.Router) {
			r.Patch("/", s.wrap(s.editMessage))
			r.Delete("/", s.wrap(s.deleteMessage))
			r.Post("/reactions", s.wrap(s.toggleReaction))
			r.Get("/reactions", s.wrap(s.listReactions))
			r.Post("/views", s.wrap(s.markViewed))
			r.Get("/views", s.wrap(s.listViews))
		})
		if s.live != nil {
			protected.Handle("/ws", s.live)
		}
	})
	return r
}

func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("HTTP server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// wrap turns a handler error into the status and code of its kind.
func (s *Server) wrap(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			level := slog.LevelDebug
			if errors.MapToHTTPStatus(err) >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			s.log.Log(r.Context(), level, "Request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"error", err)
			writeError(w, err)
		}
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.MapToHTTPStatus(err), errorResponse{
		Code:    errors.Code(err),
		Message: errors.PublicMessage(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
