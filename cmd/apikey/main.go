package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"careercatalyst/internal/config"
	"careercatalyst/internal/infra/credentials"
)

// envKeys maps each provider to the variable read when -key is empty.
var envKeys = map[string]string{
	credentials.ProviderGemini: "GEMINI_API_KEY",
	credentials.ProviderOpenAI: "OPENAI_API_KEY",
	credentials.ProviderStripe: "STRIPE_SECRET_KEY",
}

func main() {
	var (
		keyFlag      string
		providerFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (falls back to environment)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderGemini, "provider to configure ("+strings.Join(credentials.Providers, ", ")+")")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	if provider == "" {
		provider = credentials.ProviderGemini
	}
	envKey, ok := envKeys[provider]
	if !ok {
		config.Exit(fmt.Errorf("unsupported provider %q", providerFlag))
	}

	cfg, err := config.Load()
	if err != nil {
		config.Exit(err)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envKey))
	}
	if key == "" {
		config.Exit(fmt.Errorf("%s API key is required via -key or %s", strings.ToUpper(provider), envKey))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := cfg.Connect(ctx, "apikey")
	if err != nil {
		config.Exit(err)
	}
	defer conn.Close()

	store := credentials.NewStore(conn.Runner)
	props := map[string]any{"source": "apikey", "env": cfg.Env}
	rotated, err := store.Set(ctx, provider, key, props)
	if err != nil {
		config.Exit(fmt.Errorf("failed to persist %s api key: %w", provider, err))
	}

	if rotated {
		fmt.Printf("%s API key rotated\n", strings.ToUpper(provider))
		return
	}
	fmt.Printf("%s API key stored successfully\n", strings.ToUpper(provider))
}
