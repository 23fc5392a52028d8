package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"careercatalyst/internal/config"
	"careercatalyst/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Exit(err)
	}

	conn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		config.Exit(fmt.Errorf("failed to open database: %w", err))
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		config.Exit(fmt.Errorf("failed to reach database: %w", err))
	}
	// The schema uses IF NOT EXISTS throughout, so reapplying it is safe.
	if _, err := conn.ExecContext(ctx, db.Schema); err != nil {
		config.Exit(fmt.Errorf("failed to apply schema: %w", err))
	}
	fmt.Println("schema applied")
}
