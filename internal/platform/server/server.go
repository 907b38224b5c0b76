// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/addonforge/addon-authors-go/internal/components/addons"
	"github.com/addonforge/addon-authors-go/internal/components/api"
	addonsapi "github.com/addonforge/addon-authors-go/internal/components/api/addons"
	authorsapi "github.com/addonforge/addon-authors-go/internal/components/api/authors"
	"github.com/addonforge/addon-authors-go/internal/components/authors"
	"github.com/addonforge/addon-authors-go/internal/components/identity"
	"github.com/addonforge/addon-authors-go/internal/components/restrictions"
	"github.com/addonforge/addon-authors-go/internal/platform/cache"
	"github.com/addonforge/addon-authors-go/internal/platform/config"
	"github.com/addonforge/addon-authors-go/internal/ratelimit"
)

// ErrMissingDep is returned when a required dependency is absent.
var ErrMissingDep = errors.New("missing required dependency")

// Deps holds all server dependencies.
type Deps struct {
	// Required: identity and auth
	PartyRepo   identity.PartyRepo
	SessionRepo identity.SessionRepo
	UserAuth    *identity.UserAuth

	// Required: domain repositories
	AddonRepo  addons.Repo
	InviteRepo authors.Repo

	// Required: author-eligibility email restrictions
	Restricted *restrictions.List

	// Required: cache backend for login rate limiting
	Cache cache.CacheWithCounter
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	deps       *Deps

	engine         *authors.Engine
	authHandler    *api.AuthHandler
	usersHandler   *api.UsersHandler
	addonsHandler  *addonsapi.Handler
	pendingHandler *authorsapi.Handler
	loginLimiter   *ratelimit.Limiter
}

// New creates a new Server with the given configuration.
// Returns an error if required dependencies are missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}

	engine := authors.NewEngine(deps.InviteRepo, deps.AddonRepo, deps.PartyRepo, deps.Restricted, logger)

	// CurrentUser adapter for session-gated handlers
	currentUser := func(ctx context.Context) (*identity.User, error) {
		u := GetUserFromContext(ctx)
		if u == nil {
			return nil, errors.New("no authenticated user in context")
		}
		return u, nil
	}

	loginLimiter := ratelimit.New(deps.Cache, &ratelimit.Config{
		RequestsPerWindow: cfg.Ratelimit.LoginPerMinute,
		Window:            time.Minute,
		KeyPrefix:         "login:",
	})

	s := &Server{
		cfg:            cfg,
		logger:         logger,
		deps:           deps,
		engine:         engine,
		authHandler:    api.NewAuthHandler(deps.PartyRepo, deps.SessionRepo, deps.UserAuth),
		usersHandler:   api.NewUsersHandler(deps.PartyRepo, deps.SessionRepo, deps.UserAuth, currentUser),
		addonsHandler:  addonsapi.NewHandler(deps.AddonRepo, currentUser, logger),
		pendingHandler: authorsapi.NewHandler(engine, currentUser, logger),
		loginLimiter:   loginLimiter,
	}

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"mode", s.cfg.Mode,
		"store_driver", s.cfg.Store.Driver,
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// validateDeps checks that all required dependencies are provided.
func validateDeps(deps *Deps) error {
	if deps == nil {
		return errors.New("deps is nil")
	}
	if deps.PartyRepo == nil {
		return fmt.Errorf("%w: PartyRepo", ErrMissingDep)
	}
	if deps.SessionRepo == nil {
		return fmt.Errorf("%w: SessionRepo", ErrMissingDep)
	}
	if deps.UserAuth == nil {
		return fmt.Errorf("%w: UserAuth", ErrMissingDep)
	}
	if deps.AddonRepo == nil {
		return fmt.Errorf("%w: AddonRepo", ErrMissingDep)
	}
	if deps.InviteRepo == nil {
		return fmt.Errorf("%w: InviteRepo", ErrMissingDep)
	}
	if deps.Restricted == nil {
		return fmt.Errorf("%w: Restricted", ErrMissingDep)
	}
	if deps.Cache == nil {
		return fmt.Errorf("%w: Cache", ErrMissingDep)
	}
	return nil
}
