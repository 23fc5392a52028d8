package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpapi "careercatalyst/internal/http/httpapi"
	"careercatalyst/internal/infra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start api")
	}
	defer svc.close()

	router := httpapi.NewRouter(svc.app, httpapi.Options{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   "en",
		CountryLookup:   svc.countryLookup,
		LocaleMatcher:   svc.localeMatcher,
		Observe:         svc.app.Metrics.ObserveHTTP,
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	logger.Info().Str("store", cfg.StoreDriver).Str("addr", server.Addr()).Msg("api starting")
	if err := server.Run(ctx); err != nil {
		svc.close()
		logger.Fatal().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
