package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	PublicBaseURL string
	JWTSecret     string
	JWTTTL        time.Duration

	StoreDriver       string
	DatabaseURL       string
	DBMaxConns        int
	DBMinConns        int
	DBMaxConnLifetime time.Duration
	DBMaxConnIdle     time.Duration
	SessionCacheSize  int

	StoragePath string
	S3Bucket    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	RabbitMQURL    string
	WorkerCount    int
	WorkerPrefetch int

	GeoIPDBPath string

	LLMPrimary            string
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAIBaseURL         string
	OpenAIOrg             string
	OpenAITranscribeModel string
	GeminiAPIKey          string
	GeminiModel           string
	InterviewerModel      string
	LLMPrimaryTimeout     time.Duration
	LLMStructuredTimeout  time.Duration
	LLMPoolSize           int
	LLMInputTokens        int
	ScrapeTimeout         time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePricePro      string
	StripePriceUltimate string
	SubscriptionPeriod  time.Duration

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	ShutdownTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          port,
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		JWTTTL:        getEnvDuration("JWT_TTL_HOURS", time.Hour, 24),

		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 16),
		DBMinConns:        getEnvInt("DB_MIN_CONNS", 2),
		DBMaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME_MINUTES", time.Minute, 60),
		DBMaxConnIdle:     getEnvDuration("DB_MAX_CONN_IDLE_MINUTES", time.Minute, 10),
		SessionCacheSize:  getEnvInt("SESSION_CACHE_SIZE", 4096),

		StoragePath: getEnv("STORAGE_PATH", "./data"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Region:    getEnv("S3_REGION", "auto"),

		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		WorkerCount:    getEnvInt("WORKER_COUNT", 3),
		WorkerPrefetch: getEnvInt("WORKER_PREFETCH", 10),

		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		LLMPrimary:            strings.ToLower(getEnv("LLM_PRIMARY", "openai")),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:             os.Getenv("OPENAI_ORG"),
		OpenAITranscribeModel: getEnv("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		InterviewerModel:      getEnv("INTERVIEWER_MODEL", "gemini-2.0-flash"),
		LLMPrimaryTimeout:     getEnvDuration("LLM_PRIMARY_TIMEOUT_SECONDS", time.Second, 30),
		LLMStructuredTimeout:  getEnvDuration("LLM_STRUCTURED_TIMEOUT_SECONDS", time.Second, 300),
		LLMPoolSize:           getEnvInt("LLM_POOL_SIZE", 4),
		LLMInputTokens:        getEnvInt("LLM_INPUT_TOKENS", 3000),
		ScrapeTimeout:         getEnvDuration("SCRAPE_TIMEOUT_SECONDS", time.Second, 10),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePricePro:      os.Getenv("STRIPE_PRICE_PRO"),
		StripePriceUltimate: os.Getenv("STRIPE_PRICE_ULTIMATE"),
		SubscriptionPeriod:  getEnvDuration("SUBSCRIPTION_DAYS", 24*time.Hour, 180),

		HTTPReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT_SECONDS", time.Second, 15),
		HTTPWriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", time.Second, 330),
		HTTPIdleTimeout:    getEnvDuration("HTTP_IDLE_TIMEOUT_SECONDS", time.Second, 60),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT_SECONDS", time.Second, 15),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if cfg.DBMaxConns < 1 || cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
			return nil, fmt.Errorf("DB_MIN_CONNS (%d) must be between 0 and DB_MAX_CONNS (%d), and DB_MAX_CONNS at least 1", cfg.DBMinConns, cfg.DBMaxConns)
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs locally.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "" || c.AppEnv == "development" || c.AppEnv == "local"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, unit time.Duration, fallback int) time.Duration {
	return unit * time.Duration(getEnvInt(key, fallback))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
