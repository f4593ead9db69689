// Package server exposes the triage engine over HTTP: classification,
// knowledge-base lookups, feedback intake, and the fairness report.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/engine"
	"github.com/sells-group/orion-triage/internal/fairness"
	"github.com/sells-group/orion-triage/internal/feedback"
)

// Server is the REST facade over the engine.
type Server struct {
	engine  *engine.Engine
	auditor *fairness.Auditor
	loop    *feedback.Loop
	cfg     config.ServerConfig
}

// New creates the server. The auditor and loop may be nil when the
// corresponding subsystems are disabled.
func New(eng *engine.Engine, auditor *fairness.Auditor, loop *feedback.Loop, cfg config.ServerConfig) *Server {
	return &Server{engine: eng, auditor: auditor, loop: loop, cfg: cfg}
}

// Router builds the HTTP routing table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/triage", s.handleTriage)
		r.Get("/complaints", s.handleComplaints)
		r.Get("/complaints/{key}/questions", s.handleQuestions)
		r.Post("/feedback", s.handleFeedback)
		r.Get("/fairness/report", s.handleFairnessReport)
	})

	return r
}

// ListenAndServe starts the server and shuts it down gracefully when ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("server: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("server: listening", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}
