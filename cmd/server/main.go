// Package main is the entry point for the faucet OAuth server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal — its job is to:
// 1. Read configuration (from env vars and an optional .env file)
// 2. Create dependencies (logger)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points.
// Each executable gets its own directory with its own main.go.
package main

import (
	"log/slog"
	"os"

	"github.com/sakif/gh-faucet/internal/config"
	"github.com/sakif/gh-faucet/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required; everything else
	// has a default. See internal/config for the full list.
	cfg, err := config.Load()
	if err != nil {
		// The logger level comes from config, so this one error goes to a
		// default logger.
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// slog.NewTextHandler outputs human-readable key=value logs.
	// LOG_LEVEL picks the minimum level (debug → info → warn → error).
	level, _ := cfg.SlogLevel() // already validated by config.Load
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
