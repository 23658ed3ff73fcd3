package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/handlers"
	"github.com/zzjunior/whatsapp-checker-api/internal/router"
)

// Server represents the HTTP server.
type Server struct {
	container *Container
	server    *http.Server
	handler   http.Handler
}

// NewServer creates a new HTTP server.
func NewServer(container *Container, version string) *Server {
	authHandler := handlers.NewAuthHandler(
		container.AuthService(),
		container.UserRepository(),
	)
	instanceHandler := handlers.NewInstanceHandler(
		container.Registry(),
		container.InstanceRepository(),
	)
	tokenHandler := handlers.NewTokenHandler(
		container.AuthService(),
		container.InstanceRepository(),
	)
	checkHandler := handlers.NewCheckHandler(container.VerificationService())
	statsHandler := handlers.NewStatsHandler(
		container.VerificationService(),
		container.TokenRepository(),
	)
	healthHandler := handlers.NewHealthHandler(version, container.Database())

	appRouter := router.NewRouter(
		container.AuthService(),
		authHandler,
		instanceHandler,
		tokenHandler,
		checkHandler,
		statsHandler,
		healthHandler,
		container.Hub(),
		container.Config().Server.EnableCORS,
	)
	handler := appRouter.SetupRoutes()

	server := &Server{
		container: container,
		handler:   handler,
	}
	server.setupHTTPServer()

	return server
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	cfg := s.container.Config()

	s.server = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           s.handler,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Info().Msg("HTTP server configured successfully")
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully: HTTP first, then the live sessions via the container.
func (s *Server) Start(ctx context.Context) error {
	// The hub and jobs live for the whole server lifetime.
	go s.container.Hub().Run(ctx)
	s.container.Jobs().Start()

	// Restore known instances in the background; startup must not block on
	// flaky upstream connections.
	go func() {
		if err := s.container.Registry().InitializeAll(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Msg("Failed to initialize instances")
		}
	}()

	go func() {
		log.Info().
			Str("address", s.container.Config().GetServerAddress()).
			Msg("Starting HTTP server")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info().Msg("Server stopped gracefully")
	return nil
}
