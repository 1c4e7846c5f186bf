// Package server provides the HTTP embedding service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/zyrak/flux-embeddings/internal/embedding"
)

const (
	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout = 10 * time.Second

	// MaxRequestBody caps the /embed request body size.
	MaxRequestBody = 10 << 20 // 10 MiB
)

// Service is the HTTP embedding service. It owns the router and the HTTP
// server, and holds the process-wide model handle through the
// EmbeddingModel interface.
type Service struct {
	model embedding.EmbeddingModel

	router *chi.Mux
	server *http.Server

	wg sync.WaitGroup
}

// NewService creates the service around an already loaded model.
func NewService(model embedding.EmbeddingModel) *Service {
	svc := &Service{
		model:  model,
		router: chi.NewRouter(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	return svc
}

// setupMiddleware configures HTTP middleware.
//
// Deliberately no timeout middleware: an encode that has started runs to
// completion, and lock waits under load are unbounded.
func (s *Service) setupMiddleware() {
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestID)
	s.router.Use(RequestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MaxBodySize(MaxRequestBody))
	s.router.Use(RequireJSONContentType)
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	// Health never touches the model lock
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/embed", s.handleEmbed)
}

// Router returns the HTTP handler, primarily for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

// Start begins serving on the given port. The listener runs in a
// background goroutine; Start returns immediately.
func (s *Service) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().Int("port", port).Str("model", s.model.Name()).Msg("Embeddings service listening")
	return nil
}

// Shutdown gracefully stops the HTTP server. In-flight encodes run to
// completion within the context deadline.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
			return err
		}
	}

	s.wg.Wait()

	log.Info().Msg("Embeddings service shutdown complete")
	return nil
}
