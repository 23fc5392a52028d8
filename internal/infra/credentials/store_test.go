package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	token   string
	created bool
	err     error
	last    struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.last.query = query
	s.last.args = args
	return stubRow{token: s.token, created: s.created, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token   string
	created bool
	err     error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	switch ptr := dest[0].(type) {
	case *string:
		*ptr = r.token
	case *bool:
		*ptr = r.created
	default:
		return errors.New("invalid dest")
	}
	return nil
}

func TestToken(t *testing.T) {
	store := NewStore(&stubExecutor{token: " abc123 "})
	key, err := store.Token(context.Background(), ProviderGemini)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "abc123" {
		t.Fatalf("expected abc123, got %q", key)
	}
}

func TestToken_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.Token(context.Background(), ProviderOpenAI)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestToken_NilStore(t *testing.T) {
	var store *Store
	key, err := store.Token(context.Background(), ProviderStripe)
	if err != nil || key != "" {
		t.Fatalf("nil store = %q, %v", key, err)
	}
}

func TestResolvePrefersEnvironment(t *testing.T) {
	store := NewStore(&stubExecutor{token: "stored"})
	key, err := store.Resolve(context.Background(), ProviderOpenAI, " from-env ")
	if err != nil || key != "from-env" {
		t.Fatalf("Resolve = %q, %v", key, err)
	}
	key, err = store.Resolve(context.Background(), ProviderOpenAI, "")
	if err != nil || key != "stored" {
		t.Fatalf("Resolve fallback = %q, %v", key, err)
	}
}

func TestSet(t *testing.T) {
	exec := &stubExecutor{created: true}
	store := NewStore(exec)
	rotated, err := store.Set(context.Background(), ProviderStripe, " sk_test ", map[string]any{"by": "cli"})
	if err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if rotated {
		t.Fatal("first key must not count as a rotation")
	}
	if len(exec.last.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.last.args))
	}
	if v, ok := exec.last.args[0].(string); !ok || v != ProviderStripe {
		t.Fatalf("expected provider argument, got %T %v", exec.last.args[0], exec.last.args[0])
	}
	if v, ok := exec.last.args[1].(string); !ok || v != "sk_test" {
		t.Fatalf("expected trimmed key argument, got %T %v", exec.last.args[1], exec.last.args[1])
	}
	if raw, ok := exec.last.args[2].([]byte); !ok || string(raw) != `{"by":"cli"}` {
		t.Fatalf("expected props json, got %v", exec.last.args[2])
	}
}

func TestSetRotation(t *testing.T) {
	store := NewStore(&stubExecutor{created: false})
	rotated, err := store.Set(context.Background(), ProviderOpenAI, "sk-new", nil)
	if err != nil || !rotated {
		t.Fatalf("Set = %v, %v", rotated, err)
	}
}

func TestSetValidation(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if _, err := store.Set(context.Background(), ProviderGemini, " ", nil); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := store.Set(context.Background(), "qwen", "k", nil); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}
