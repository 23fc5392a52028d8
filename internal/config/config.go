// Package config loads the small environment shared by the admin commands.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"careercatalyst/internal/infra"
)

var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

type Config struct {
	DatabaseURL string
	Env         string
}

// Load reads .env and .env.local when present. Missing files are not an error.
func Load() (Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	c := Config{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Env:         getenv("APP_ENV", "development"),
	}
	if c.DatabaseURL == "" {
		return Config{}, ErrMissingDatabaseURL
	}
	return c, nil
}

// Conn is an open pool plus the SQL runner bound to it.
type Conn struct {
	Pool   *pgxpool.Pool
	Runner *infra.SQLRunner
	Logger zerolog.Logger
}

func (c *Conn) Close() { c.Pool.Close() }

// Connect opens the database for the named command.
func (c Config) Connect(ctx context.Context, cmd string) (*Conn, error) {
	pool, err := pgxpool.New(ctx, c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", cmd).Logger()
	return &Conn{Pool: pool, Runner: infra.NewSQLRunner(pool, logger), Logger: logger}, nil
}

// Exit prints err and stops the command.
func Exit(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
