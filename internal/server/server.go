// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and passes it to New, which creates:
//
//	user store (memory | sqlite | badger)
//	auth.GitHubProvider
//	  → service.AuthService / service.FaucetService
//	  → handler.AuthHandler / handler.FaucetHandler
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/gh-faucet/internal/auth"
	"github.com/sakif/gh-faucet/internal/config"
	"github.com/sakif/gh-faucet/internal/handler"
	"github.com/sakif/gh-faucet/internal/middleware"
	"github.com/sakif/gh-faucet/internal/repository"
	badgerRepo "github.com/sakif/gh-faucet/internal/repository/badger"
	"github.com/sakif/gh-faucet/internal/repository/memory"
	sqliteRepo "github.com/sakif/gh-faucet/internal/repository/sqlite"
	"github.com/sakif/gh-faucet/internal/service"
)

// Store is a user repository the server owns and must close on shutdown.
type Store interface {
	repository.UserRepository
	Close() error
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the user store. When the server shuts down we close it to
// flush pending writes and release file locks (SQLite file, Badger directory).
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	store  Store
}

// New creates a new Server with the given config.
//
// DEPENDENCY INJECTION & WIRING:
//  1. Open the user store selected by STORE_DRIVER
//  2. Create the GitHub client and the services on top of it
//  3. Create the handlers and wire them to routes
//
// Each layer only receives what it needs:
// - Services get the repository interface (not the concrete store)
// - Handlers get small service interfaces (not the repository)
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.StoreDriver, err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		store.Close() // Clean up the store if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// openStore builds the backend named by cfg.StoreDriver.
func openStore(cfg config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.New(), nil

	case config.DriverSQLite:
		// Ensure the data directory exists (like `mkdir -p`).
		if err := ensureDir(filepath.Dir(cfg.DBPath)); err != nil {
			return nil, err
		}
		return sqliteRepo.New(cfg.DBPath, logger)

	case config.DriverBadger:
		if err := ensureDir(cfg.BadgerDir); err != nil {
			return nil, err
		}
		return badgerRepo.Open(cfg.BadgerDir, false, logger)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	// 0755 = owner can read/write/execute, others can read/execute.
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /health                    → liveness + active storage backend
// GET    /auth/{provider}           → {"authUrl": ...} (github only)
// GET    /auth/{provider}/callback  → OAuth callback, redirects to the frontend
// POST   /faucet/claim              → validate and record a faucet claim
// GET    /users                     → every stored user
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Recoverer — catches panics and returns 500 instead of crashing
// 4. Logger — logs each request with timing info
// 5. CORS — answers preflight requests from the frontend origin
func (s *Server) setupRoutes() error {
	frontend, err := s.config.Frontend()
	if err != nil {
		return err
	}

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID) // Adds X-Request-ID header
	s.router.Use(chimiddleware.RealIP)    // Extracts real IP from X-Forwarded-For
	s.router.Use(chimiddleware.Recoverer) // Recovers from panics, returns 500

	// Our custom logging middleware
	s.router.Use(middleware.Logger(s.logger))

	// CORS:
	// The frontend runs on its own origin (e.g. http://localhost:3000) and calls
	// this API with fetch(). Only that origin is allowed, with credentials.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.config.FrontendOrigin()},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// === Dependency chain ===
	github := auth.NewGitHubProvider(auth.Config{
		ClientID:     s.config.GitHubClientID,
		ClientSecret: s.config.GitHubClientSecret,
		CallbackURL:  s.config.GitHubCallbackURL,
		Timeout:      s.config.GitHubTimeout,
	})
	authService := service.NewAuthService(github, s.store, s.logger)
	faucetService := service.NewFaucetService(s.store, s.logger)

	authHandler := handler.NewAuthHandler(authService, frontend, s.logger)
	faucetHandler := handler.NewFaucetHandler(faucetService, s.logger)

	// === Routes ===
	s.router.Get("/health", handler.HealthHandler(s.config.StoreDriver))

	s.router.Get("/auth/{provider}", authHandler.HandleAuthURL)
	s.router.Get("/auth/{provider}/callback", authHandler.HandleCallback)

	s.router.Post("/faucet/claim", faucetHandler.HandleClaim)
	s.router.Get("/users", authHandler.HandleListUsers)

	return nil
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the user store. Start calls it on shutdown; tests that never
// call Start call it directly.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the user store (flushes writes, releases file locks)
//
// The `defer s.Close()` ensures step 3 happens on every return path.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	// Create the HTTP server with sensible timeouts
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine (so it doesn't block)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("storage", s.config.StoreDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		// Server failed to start
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		// Received shutdown signal
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
