package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"careercatalyst/internal/adapter/repo"
	"careercatalyst/internal/coach"
	"careercatalyst/internal/domain"
	"careercatalyst/internal/events"
	"careercatalyst/internal/http/handlers"
	"careercatalyst/internal/identity"
	"careercatalyst/internal/infra"
	"careercatalyst/internal/infra/credentials"
	"careercatalyst/internal/infra/geoip"
	"careercatalyst/internal/ledger"
	"careercatalyst/internal/metrics"
	"careercatalyst/internal/middleware"
	"careercatalyst/internal/providers/interviewer"
	"careercatalyst/internal/providers/llm"
	"careercatalyst/internal/providers/payment"
	"careercatalyst/internal/scrape"
	"careercatalyst/internal/storage"
	"careercatalyst/internal/workflow"
)

type deps struct {
	app           *handlers.App
	countryLookup middleware.CountryLookup
	localeMatcher middleware.LocaleMatcher
	closers       []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

type stores struct {
	users     domain.UserRepository
	ledger    domain.LedgerRepository
	analytics domain.AnalyticsRepository
	sql       infra.SQLExecutor
	ready     func(context.Context) error
}

func build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*deps, error) {
	d := &deps{localeMatcher: coach.MatchSupported}

	m, err := metrics.New()
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg, logger, d)
	if err != nil {
		return nil, err
	}
	creds := credentials.NewStore(st.sql)

	var billing *payment.Stripe
	stripeKey, err := creds.Resolve(ctx, credentials.ProviderStripe, cfg.StripeSecretKey)
	if err != nil {
		logger.Warn().Err(err).Msg("load stripe key failed")
	}
	if stripeKey != "" {
		billing, err = payment.NewStripe(payment.Options{
			SecretKey:     stripeKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			PricePro:      cfg.StripePricePro,
			PriceUltimate: cfg.StripePriceUltimate,
			BaseURL:       cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("configure stripe: %w", err)
		}
	} else {
		logger.Warn().Msg("stripe key missing, billing disabled")
	}

	ledgerOpts := ledger.Options{
		Store:       st.ledger,
		Period:      cfg.SubscriptionPeriod,
		Logger:      &logger,
		OnGate:      m.Gate,
		OnRecord:    m.Run,
		OnReconcile: m.Reconcile,
	}
	if billing != nil {
		ledgerOpts.Payments = billing
	}
	l, err := ledger.New(ledgerOpts)
	if err != nil {
		return nil, err
	}

	publisher, err := openPublisher(cfg, logger, d)
	if err != nil {
		return nil, err
	}

	id, err := identity.New(identity.Options{
		Users:      st.users,
		Ledger:     l,
		Events:     publisher,
		JWTSecret:  cfg.JWTSecret,
		TokenTTL:   cfg.JWTTTL,
		BaseURL:    cfg.PublicBaseURL,
		AutoVerify: cfg.IsDevelopment(),
		Logger:     &logger,
	})
	if err != nil {
		return nil, err
	}

	c, err := buildCoach(ctx, cfg, logger, creds, m)
	if err != nil {
		return nil, err
	}

	objects, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sessions, err := workflow.NewStore(cfg.SessionCacheSize)
	if err != nil {
		return nil, err
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	if resolver != nil {
		d.countryLookup = resolver.Lookup()
		d.closers = append(d.closers, func() { _ = resolver.Close() })
	}

	d.app = &handlers.App{
		Logger:    logger,
		Ledger:    l,
		Identity:  id,
		Sessions:  sessions,
		Coach:     c,
		Scraper:   scrape.New(scrape.Options{Timeout: cfg.ScrapeTimeout, Logger: &logger}),
		Storage:   objects,
		Analytics: st.analytics,
		Events:    publisher,
		Metrics:   m,
		Ready:     st.ready,
	}
	if billing != nil {
		d.app.Billing = billing
	}
	return d, nil
}

func openStores(ctx context.Context, cfg *infra.Config, logger zerolog.Logger, d *deps) (stores, error) {
	if cfg.StoreDriver == infra.StoreDriverMemory {
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		users := repo.NewMemoryUserRepository()
		ledgerRepo := repo.NewMemoryLedgerRepository()
		return stores{
			users:  users,
			ledger: ledgerRepo,
			analytics: repo.NewMemoryAnalyticsRepository(users.Count, func() int {
				return ledgerRepo.ActivePaid(time.Now())
			}),
		}, nil
	}

	pool, err := infra.NewDBPool(ctx, cfg, "api")
	if err != nil {
		return stores{}, err
	}
	d.closers = append(d.closers, pool.Close)
	runner := infra.NewSQLRunner(pool, logger)
	return stores{
		users:     repo.NewUserRepository(runner),
		ledger:    repo.NewLedgerRepository(runner),
		analytics: repo.NewAnalyticsRepository(runner),
		sql:       runner,
		ready:     pool.Ping,
	}, nil
}

func openPublisher(cfg *infra.Config, logger zerolog.Logger, d *deps) (events.Publisher, error) {
	if cfg.RabbitMQURL == "" {
		logger.Info().Msg("no broker configured, analytics events are dropped")
		return events.NopPublisher{}, nil
	}
	pub, err := events.Dial(cfg.RabbitMQURL, logger)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() { _ = pub.Close() })
	return pub, nil
}

func openStorage(ctx context.Context, cfg *infra.Config) (storage.Store, error) {
	if cfg.S3Bucket != "" {
		return storage.NewS3Store(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3Endpoint != "",
		})
	}
	path := cfg.StoragePath
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return storage.NewFileStore(path)
}

func buildCoach(ctx context.Context, cfg *infra.Config, logger zerolog.Logger, creds *credentials.Store, m *metrics.Metrics) (*coach.Coach, error) {
	openAIKey, err := creds.Resolve(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("load openai key failed")
	}
	geminiKey, err := creds.Resolve(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("load gemini key failed")
	}

	httpClient := &http.Client{Timeout: cfg.LLMStructuredTimeout + 10*time.Second}
	var openAI *llm.OpenAIClient
	if openAIKey != "" {
		openAI, err = llm.NewOpenAIClient(llm.OpenAIOptions{
			APIKey:          openAIKey,
			Model:           cfg.OpenAIModel,
			TranscribeModel: cfg.OpenAITranscribeModel,
			BaseURL:         cfg.OpenAIBaseURL,
			Organization:    cfg.OpenAIOrg,
			HTTPClient:      httpClient,
			OnWarning: func(reason, detail string) {
				logger.Warn().Str("reason", reason).Str("detail", detail).Msg("openai model adjusted")
			},
		})
		if err != nil {
			return nil, err
		}
	}
	var gemini *llm.GeminiClient
	if geminiKey != "" {
		gemini, err = llm.NewGeminiClient(ctx, llm.GeminiOptions{
			APIKey:     geminiKey,
			Model:      cfg.GeminiModel,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
	}

	var primary, fallback llm.Completer
	switch {
	case cfg.LLMPrimary == llm.ProviderGemini && gemini != nil:
		primary = gemini
		if openAI != nil {
			fallback = openAI
		}
	case openAI != nil:
		primary = openAI
		if gemini != nil {
			fallback = gemini
		}
	case gemini != nil:
		primary = gemini
	}
	router, err := llm.NewRouter(llm.RouterOptions{
		Primary:           primary,
		Fallback:          fallback,
		PoolSize:          cfg.LLMPoolSize,
		PrimaryTimeout:    cfg.LLMPrimaryTimeout,
		StructuredTimeout: cfg.LLMStructuredTimeout,
		Logger:            &logger,
		OnFallback:        m.LLMFallback,
		OnCall:            m.LLMCall,
	})
	if err != nil {
		return nil, fmt.Errorf("configure llm: %w", err)
	}

	opts := coach.Options{LLM: router, InputTokens: cfg.LLMInputTokens, Logger: &logger}
	if openAI != nil {
		opts.Transcriber = openAI
	}
	if geminiKey != "" {
		agent, err := interviewer.New(ctx, interviewer.Options{APIKey: geminiKey, Model: cfg.InterviewerModel, Logger: &logger})
		if err != nil {
			logger.Warn().Err(err).Msg("interviewer agent disabled")
		} else {
			opts.Interviewer = agent
		}
	}
	return coach.New(opts)
}
