// Package api exposes the messenger over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"firstcontact/internal/messenger"
)

// Version is reported by GET / and the version command.
var Version = "2.0.0"

const serviceName = "Telegram First Message Bot"

type Server struct {
	svc        *messenger.Service
	delayRange string
	log        *zap.Logger

	// sessionCtx bounds bulk sessions. They outlive the request that started
	// them and end with the server.
	sessionCtx context.Context
}

func NewServer(svc *messenger.Service, delayRange string, log *zap.Logger) *Server {
	return &Server{
		svc:        svc,
		delayRange: delayRange,
		log:        log.Named("api"),
		sessionCtx: context.Background(),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(recoverer(s.log))
	r.Use(corsMiddleware())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/", s.handleRoot)
	r.Get("/status", s.handleStatus)
	r.Post("/auth", s.handleAuth)
	r.Post("/send-message", s.handleSendMessage)
	r.Post("/send-bulk", s.handleSendBulk)
	r.Post("/stop-session", s.handleStopSession)

	return r
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.sessionCtx = ctx

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server started", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
