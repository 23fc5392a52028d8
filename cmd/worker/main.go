package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"careercatalyst/internal/adapter/repo"
	"careercatalyst/internal/domain"
	"careercatalyst/internal/events"
	"careercatalyst/internal/infra"
)

// reconnectDelay is how long the worker waits before dialing the broker again
// after the delivery channel closed.
const reconnectDelay = 5 * time.Second

// analyticsSink is the write side of the analytics repository.
type analyticsSink interface {
	Apply(ctx context.Context, delta domain.AnalyticsDaily) error
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.RabbitMQURL == "" {
		logger.Fatal().Msg("worker: RABBITMQ_URL is required")
	}
	if cfg.StoreDriver != infra.StoreDriverPostgres {
		logger.Fatal().Str("store", cfg.StoreDriver).Msg("worker: analytics need the postgres store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg, "worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	handle := applyAnalytics(repo.NewAnalyticsRepository(runner), logger)

	logger.Info().Int("workers", cfg.WorkerCount).Int("prefetch", cfg.WorkerPrefetch).Msg("worker: started")
	for {
		err := consume(ctx, cfg, logger, handle)
		if ctx.Err() != nil {
			logger.Info().Msg("worker: stopped")
			return
		}
		logger.Error().Err(err).Dur("retry_in", reconnectDelay).Msg("worker: consumer stopped")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func consume(ctx context.Context, cfg *infra.Config, logger zerolog.Logger, handle events.Handler) error {
	consumer, err := events.DialConsumer(cfg.RabbitMQURL, cfg.WorkerPrefetch, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()
	if err := consumer.Run(ctx, cfg.WorkerCount, handle); err != nil {
		return err
	}
	return errors.New("worker: consumer returned")
}

// applyAnalytics folds each event into the daily counters. Events that do not
// touch analytics are acknowledged without a write.
func applyAnalytics(sink analyticsSink, logger zerolog.Logger) events.Handler {
	return func(ctx context.Context, evt domain.Event) error {
		delta, ok := events.Delta(evt)
		if !ok {
			logger.Debug().Str("type", evt.Type).Msg("worker: event skipped")
			return nil
		}
		if err := sink.Apply(ctx, delta); err != nil {
			return err
		}
		logger.Debug().Str("type", evt.Type).Str("user_id", evt.UserID).Time("day", delta.Day).Msg("worker: analytics applied")
		return nil
	}
}
