package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zzjunior/whatsapp-checker-api/internal/auth"
	"github.com/zzjunior/whatsapp-checker-api/internal/handlers"
	"github.com/zzjunior/whatsapp-checker-api/internal/middleware"
	"github.com/zzjunior/whatsapp-checker-api/internal/ws"
)

// Router wires all HTTP routes.
type Router struct {
	authSvc *auth.Service

	authHandler     *handlers.AuthHandler
	instanceHandler *handlers.InstanceHandler
	tokenHandler    *handlers.TokenHandler
	checkHandler    *handlers.CheckHandler
	statsHandler    *handlers.StatsHandler
	healthHandler   *handlers.HealthHandler
	hub             *ws.Hub

	enableCORS bool
}

// NewRouter creates a new router instance.
func NewRouter(
	authSvc *auth.Service,
	authHandler *handlers.AuthHandler,
	instanceHandler *handlers.InstanceHandler,
	tokenHandler *handlers.TokenHandler,
	checkHandler *handlers.CheckHandler,
	statsHandler *handlers.StatsHandler,
	healthHandler *handlers.HealthHandler,
	hub *ws.Hub,
	enableCORS bool,
) *Router {
	return &Router{
		authSvc:         authSvc,
		authHandler:     authHandler,
		instanceHandler: instanceHandler,
		tokenHandler:    tokenHandler,
		checkHandler:    checkHandler,
		statsHandler:    statsHandler,
		healthHandler:   healthHandler,
		hub:             hub,
		enableCORS:      enableCORS,
	}
}

// SetupRoutes configures all the HTTP routes.
func (rt *Router) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(middleware.LoggingMiddleware)

	if rt.enableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Token"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Probes
	r.Get("/health", rt.healthHandler.Health)
	r.Get("/ready", rt.healthHandler.Ready)
	r.Get("/live", rt.healthHandler.Live)

	// Realtime channel; authentication happens in-band after the upgrade.
	r.Get("/ws", rt.hub.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", rt.healthHandler.Health)
		rt.setupCheckRoutes(r)
		rt.setupAdminRoutes(r)
	})

	return r
}

// setupCheckRoutes configures the API-token-authenticated check surface.
func (rt *Router) setupCheckRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.APITokenAuth(rt.authSvc))
		r.Post("/check", rt.checkHandler.Check)
		r.Get("/check/{phone}", rt.checkHandler.CheckGet)
	})
}

// setupAdminRoutes configures the JWT-authenticated admin panel surface.
func (rt *Router) setupAdminRoutes(r chi.Router) {
	r.Post("/auth/login", rt.authHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(rt.authSvc))

		r.Get("/auth/me", rt.authHandler.Me)
		r.Put("/auth/password", rt.authHandler.ChangePassword)

		r.Route("/instances", func(r chi.Router) {
			r.Post("/", rt.instanceHandler.Create)
			r.Get("/", rt.instanceHandler.List)
			r.With(middleware.RequireAdmin).Get("/all", rt.instanceHandler.ListAll)

			r.Route("/{instanceID}", func(r chi.Router) {
				r.Get("/", rt.instanceHandler.Get)
				r.Delete("/", rt.instanceHandler.Delete)
				r.Post("/connect", rt.instanceHandler.Connect)
				r.Post("/disconnect", rt.instanceHandler.Disconnect)
			})
		})

		r.Route("/tokens", func(r chi.Router) {
			r.Post("/", rt.tokenHandler.Create)
			r.Get("/", rt.tokenHandler.List)
			r.Delete("/{tokenID}", rt.tokenHandler.Revoke)
		})

		r.Get("/stats", rt.statsHandler.Stats)

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/", rt.authHandler.CreateUser)
			r.Get("/", rt.authHandler.ListUsers)
			r.Delete("/{userID}", rt.authHandler.DeleteUser)
		})
	})
}
