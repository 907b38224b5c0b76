package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/addonforge/addon-authors-go/internal/components/api"
)

// RouteGroup defines an endpoint group with its auth requirements.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
}

// routeGroups defines all endpoint groups and their auth requirements.
// This table is the single source of truth for routing decisions.
var routeGroups = []RouteGroup{
	{Name: "addons-api", PathPrefix: "/api/v5/addons", RequiresAuth: true},
	{Name: "api", PathPrefix: "/api", RequiresAuth: true},
}

// GetRouteGroups returns the route group definitions for testing.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// publicExceptions are specific paths that don't require auth within
// otherwise protected groups.
var publicExceptions = []string{
	"/api/healthz",
	"/api/auth/login",
}

// IsAuthRequired checks if a given path requires authentication.
// This is used by the auth middleware to make gating decisions.
func IsAuthRequired(path string) bool {
	for _, exc := range publicExceptions {
		if pathMatchesPrefix(path, exc) {
			return false
		}
	}

	for _, rg := range routeGroups {
		if pathMatchesPrefix(path, rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}

	// Default: require auth for unknown paths
	return true
}

// pathMatchesPrefix checks if path equals or is a subpath of prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		if path[len(prefix)] == '/' {
			return true
		}
	}
	return false
}

// setupRoutes creates the chi router with all route groups mounted.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// Global middleware stack (order matters for correct logging).
	// RequestID must come first so GetReqID works in loggingMiddleware.
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware().Handler)
	r.Use(s.authMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Health endpoint (public)
		r.Get("/healthz", api.HealthHandler)

		// Auth endpoints (login is public and rate limited)
		r.Route("/auth", func(r chi.Router) {
			r.With(s.loginLimiter.Middleware).Post("/login", s.authHandler.Login)
			r.Post("/logout", s.authHandler.Logout)
			r.Get("/me", s.authHandler.GetCurrentUser)
		})

		// Account provisioning (admin gated in the handler)
		r.Post("/users", s.usersHandler.HandleCreate)
		r.Get("/users/{userId}", s.usersHandler.HandleGet)
		r.Delete("/users/{userId}", s.usersHandler.HandleDelete)

		// Marketplace add-ons API
		r.Route("/v5/addons", func(r chi.Router) {
			r.Post("/addon/", s.addonsHandler.HandleCreate)

			r.Route("/addon/{addon}", func(r chi.Router) {
				r.Get("/", s.addonsHandler.HandleGet)

				r.Route("/authors", func(r chi.Router) {
					r.Get("/", s.addonsHandler.HandleListAuthors)
					r.Route("/{userId}", func(r chi.Router) {
						r.Get("/", s.addonsHandler.HandleGetAuthor)
						r.Patch("/", s.addonsHandler.HandleEditAuthor)
						r.Delete("/", s.addonsHandler.HandleDeleteAuthor)
					})
				})

				r.Route("/pending-authors", func(r chi.Router) {
					r.Post("/", s.pendingHandler.HandleCreate)
					r.Get("/", s.pendingHandler.HandleList)

					// Static segments route before the {userId} wildcard.
					r.Post("/confirm/", s.pendingHandler.HandleConfirm)
					r.Post("/decline/", s.pendingHandler.HandleDecline)

					r.Route("/{userId}", func(r chi.Router) {
						r.Get("/", s.pendingHandler.HandleGet)
						r.Patch("/", s.pendingHandler.HandleEdit)
						r.Delete("/", s.pendingHandler.HandleDelete)
					})
				})
			})
		})
	})

	return r
}

// corsMiddleware builds the CORS policy from the configured origins.
// With no configured origins every origin is allowed, which is the dev
// default; production configs list their origins explicitly.
func (s *Server) corsMiddleware() *cors.Cors {
	origins := make([]string, 0, len(s.cfg.Server.TrustedOrigins)+1)
	if s.cfg.PublicOrigin != "" {
		origins = append(origins, s.cfg.PublicOrigin)
	}
	origins = append(origins, s.cfg.Server.TrustedOrigins...)

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: len(origins) > 0,
		MaxAge:           300,
	})
}
