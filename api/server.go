package api

import (
	"Muse/core"
	"Muse/lib/sl"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const (
	readTimeout     = 15 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 30 * time.Second
	// headroom on top of the backend timeouts for writing the response
	writeHeadroom = 15 * time.Second
)

type Server struct {
	server *http.Server
	log    *slog.Logger
}

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.RequestID)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	// flat routes so a wrong method answers 405 instead of 404
	r.HandleFunc("/api/message", h.Message).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/clear", h.Clear).Methods(http.MethodPost)
	return r
}

func NewServer(conf *core.Config, h *Handler, log *slog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:         conf.ListenAddr(),
			Handler:      NewRouter(h),
			ReadTimeout:  readTimeout,
			WriteTimeout: conf.Ollama.Timeout + conf.Together.Timeout + writeHeadroom,
			IdleTimeout:  idleTimeout,
		},
		log: log.With(sl.Module("server")),
	}
}

// Start serves in the background; errors other than a clean shutdown are logged
func (s *Server) Start() {
	go func() {
		s.log.Info("listening", slog.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server stopped with error", sl.Err(err))
		}
	}()
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
