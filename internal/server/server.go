// Package server is the composition root: it builds every dependency from
// the configuration, mounts the routes and runs the HTTP server.
//
// Dependency flow:
//
//	config.Config → sqlite.DB → services → handlers → chi router
//	              → media.S3Store → media.Cleaner (worker pool)
//
// Handlers only see services, services only see repository interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/auth"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/config"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/handler"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/media"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/metrics"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/middleware"
	sqliteRepo "github.com/carlosfernandezdev/backend-recipeapp/internal/repository/sqlite"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/service"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 1 << 20

const shutdownTimeout = 30 * time.Second

// Server owns the database, the media cleaner and the rate limiter; Close
// releases all three.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	version string
	logger  *slog.Logger

	db      *sqliteRepo.DB
	metrics *metrics.Metrics
	cleaner *media.Cleaner
	limiter *middleware.RateLimiter
	tokens  *auth.TokenService

	uploads   handler.UploadSigner
	destroyer media.Destroyer
}

// Option adjusts a Server before its routes are mounted.
type Option func(*Server)

// WithUploadSigner replaces the S3 signer. Tests use it to enable the
// upload route without a bucket.
func WithUploadSigner(signer handler.UploadSigner) Option {
	return func(s *Server) { s.uploads = signer }
}

// WithDestroyer replaces the media host the cleaner deletes from.
func WithDestroyer(d media.Destroyer) Option {
	return func(s *Server) { s.destroyer = d }
}

// New wires every dependency and mounts the routes. The returned Server
// has its cleaner running; call Start to serve or Close to release it.
func New(cfg *config.Config, version string, logger *slog.Logger, opts ...Option) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		version: version,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	s.destroyer = media.NopDestroyer{Logger: logger}
	if cfg.Media.Bucket != "" {
		store, err := media.NewS3Store(context.Background(), media.S3Config{
			Bucket:        cfg.Media.Bucket,
			Region:        cfg.Media.Region,
			Endpoint:      cfg.Media.Endpoint,
			AccessKey:     cfg.Media.AccessKey,
			SecretKey:     cfg.Media.SecretKey,
			PublicBaseURL: cfg.Media.PublicBaseURL,
			UploadTTL:     cfg.Media.UploadTTL.Std(),
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring media storage: %w", err)
		}
		s.destroyer = store
		s.uploads = store
	} else {
		logger.Warn("media bucket not configured, uploads disabled and image deletions skipped")
	}

	for _, opt := range opts {
		opt(s)
	}

	s.cleaner = media.NewCleaner(s.destroyer, media.CleanerConfig{
		Workers:       cfg.Media.Workers,
		QueueSize:     cfg.Media.QueueSize,
		DeleteTimeout: cfg.Media.DeleteTimeout.Std(),
	}, logger, s.metrics)

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	s.cleaner.Start()
	if s.limiter != nil {
		s.limiter.StartCleanup(time.Minute)
	}
	return s, nil
}

// setupRoutes mounts middleware and handlers.
//
//	GET    /                                  banner
//	GET    /health                            database ping
//	GET    /metrics                           Prometheus
//	POST   /auth/register|login|refresh       rate limited
//	GET    /auth/github/login|callback        when GitHub is configured
//	GET    /users/me, PATCH, DELETE
//	/recipes, /recipes/{id}
//	/groups, /groups/{id}
//	/groups/{groupId}/recipes[/{id}]
//	GET    /api/upload/signature              when media is configured
//
// Middleware order: RequestID, RealIP, Recoverer, logging, metrics, body
// limit. The rate limiter keys on RemoteAddr, which RealIP only rewrites for
// requests arriving through TRUSTED_PROXIES.
func (s *Server) setupRoutes() error {
	cfg := s.config

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL.Std(),
		RefreshTTL:    cfg.Auth.RefreshTTL.Std(),
	})
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	s.tokens = tokens

	passwords, err := auth.NewPasswordService(cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password service: %w", err)
	}

	userService := service.NewUserService(s.db.Users(), s.db.Recipes(), tokens, passwords, s.cleaner, s.logger)
	recipeService := service.NewRecipeService(s.db.Recipes(), s.cleaner, service.ReadPolicy(cfg.Recipes.ReadPolicy), s.logger)
	groupService := service.NewGroupService(s.db.Groups(), s.db.Recipes(), cfg.Recipes.GroupForeignRecipes, s.logger)

	var github handler.GitHubSignIn
	if cfg.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}

	authHandler := handler.NewAuthHandler(userService, github, cfg.IsProduction(), s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	recipeHandler := handler.NewRecipeHandler(recipeService, s.logger)
	groupHandler := handler.NewGroupHandler(groupService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.version, s.logger)

	proxies, err := cfg.ProxyPrefixes()
	if err != nil {
		return err
	}

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RealIP(proxies))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))
	r.Use(s.metrics.Instrument)
	r.Use(chimiddleware.RequestSize(MaxBodyBytes))

	r.NotFound(healthHandler.HandleNotFound)
	r.MethodNotAllowed(healthHandler.HandleMethodNotAllowed)

	r.Get("/", healthHandler.HandleRoot)
	r.Get("/health", healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		if cfg.Auth.RateLimit > 0 {
			s.limiter = middleware.NewRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateBurst, 10*time.Minute, s.logger)
			r.Use(s.limiter.Handler)
		}
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/refresh", authHandler.HandleRefresh)
		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", userHandler.HandleGetMe)
			r.Patch("/", userHandler.HandleUpdateMe)
			r.Delete("/", userHandler.HandleDeleteMe)
		})

		r.Route("/recipes", func(r chi.Router) {
			r.Get("/", recipeHandler.HandleList)
			r.Post("/", recipeHandler.HandleCreate)
			r.Get("/{id}", recipeHandler.HandleGet)
			r.Patch("/{id}", recipeHandler.HandleUpdate)
			r.Delete("/{id}", recipeHandler.HandleDelete)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", groupHandler.HandleList)
			r.Post("/", groupHandler.HandleCreate)
			r.Get("/{id}", groupHandler.HandleGet)
			r.Patch("/{id}", groupHandler.HandleUpdate)
			r.Delete("/{id}", groupHandler.HandleDelete)
			r.Get("/{groupId}/recipes", groupHandler.HandleListRecipes)
			r.Post("/{groupId}/recipes/{id}", groupHandler.HandleAddRecipe)
			r.Delete("/{groupId}/recipes/{id}", groupHandler.HandleRemoveRecipe)
		})

		if s.uploads != nil {
			uploadHandler := handler.NewUploadHandler(s.uploads, s.logger)
			r.Get("/api/upload/signature", uploadHandler.HandleSignature)
		}
	})

	return nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops background work and closes the database. Queued media
// deletions are drained first.
func (s *Server) Close() error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.cleaner.Stop()
	return s.db.Close()
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully:
// in-flight requests get 30 seconds, then the cleaner drains and the
// database closes.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing server resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
			slog.String("version", s.version),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
