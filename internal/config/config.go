// Package config loads the server configuration from the environment.
//
// SOURCES, IN ORDER:
//  1. A .env file in the working directory, if there is one (godotenv)
//  2. The process environment, which wins over .env
//
// Struct tags drive the parsing (caarlos0/env): the variable name, a default,
// and whether the variable is required.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage backends accepted by STORE_DRIVER.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Config holds everything the server needs to start.
type Config struct {
	Port int `env:"PORT" envDefault:"4000"`

	// Credentials of the GitHub OAuth App. Startup fails without them.
	GitHubClientID     string `env:"GITHUB_CLIENT_ID,required,notEmpty"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET,required,notEmpty"`
	// Empty means "use the callback registered with the OAuth App".
	GitHubCallbackURL string        `env:"GITHUB_CALLBACK_URL"`
	GitHubTimeout     time.Duration `env:"GITHUB_TIMEOUT" envDefault:"10s"`

	// FrontendURL is both the redirect target after sign-in and the only
	// origin CORS allows.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DBPath      string `env:"DB_PATH" envDefault:"data/faucet.db"`
	BadgerDir   string `env:"BADGER_DIR" envDefault:"data/badger"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	// A missing .env is normal in production, so the error is ignored.
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadFrom parses only the given variables, ignoring the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values env tags cannot express.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.GitHubTimeout <= 0 {
		return fmt.Errorf("config: GITHUB_TIMEOUT must be positive, got %s", c.GitHubTimeout)
	}
	if _, err := c.Frontend(); err != nil {
		return err
	}
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite, DriverBadger:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q (want %s, %s or %s)",
			c.StoreDriver, DriverMemory, DriverSQLite, DriverBadger)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Frontend returns FrontendURL parsed. It must be absolute.
func (c Config) Frontend() (*url.URL, error) {
	u, err := url.Parse(c.FrontendURL)
	if err != nil {
		return nil, fmt.Errorf("config: FRONTEND_URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("config: FRONTEND_URL %q must be an absolute URL", c.FrontendURL)
	}
	return u, nil
}

// FrontendOrigin is FrontendURL reduced to scheme://host[:port], the form
// CORS compares against the Origin header.
func (c Config) FrontendOrigin() string {
	u, err := c.Frontend()
	if err != nil {
		return c.FrontendURL
	}
	return u.Scheme + "://" + u.Host
}

// SlogLevel parses LOG_LEVEL ("debug", "info", "warn", "error").
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return level, nil
}
