// Package credentials reads provider API keys kept in integration_tokens,
// used when the matching environment variable is empty.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"careercatalyst/internal/infra"
	"careercatalyst/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderStripe = "stripe"
)

// Providers lists the keys the apikey tool accepts.
var Providers = []string{ProviderGemini, ProviderOpenAI, ProviderStripe}

var ErrUnknownProvider = errors.New("unknown credentials provider")

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	if s == nil || s.sql == nil {
		return "", nil
	}
	row := s.sql.QueryRow(ctx, sqlinline.QSelectProviderKey, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: load %s: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers envValue and falls back to the stored key.
func (s *Store) Resolve(ctx context.Context, provider, envValue string) (string, error) {
	if v := strings.TrimSpace(envValue); v != "" {
		return v, nil
	}
	return s.Token(ctx, provider)
}

// Set stores key for provider and reports whether an earlier key was
// replaced. props is merged into the JSON kept next to the key.
func (s *Store) Set(ctx context.Context, provider, key string, props map[string]any) (bool, error) {
	if !known(provider) {
		return false, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("%s api key is required", provider)
	}
	created, err := s.upsert(ctx, provider, key, props)
	if err != nil {
		return false, fmt.Errorf("credentials: store %s: %w", provider, err)
	}
	return !created, nil
}

func known(provider string) bool {
	for _, p := range Providers {
		if p == provider {
			return true
		}
	}
	return false
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) (bool, error) {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	var created bool
	if err := s.sql.QueryRow(ctx, sqlinline.QStoreProviderKey, provider, token, raw).Scan(&created); err != nil {
		return false, err
	}
	return created, nil
}
