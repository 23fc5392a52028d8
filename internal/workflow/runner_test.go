package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careercatalyst/internal/domain"
)

type fakeGate struct {
	allowed   bool
	gateErr   error
	recordErr error
	gated     int
	recorded  []domain.Module
}

func (g *fakeGate) IsModuleAllowed(ctx context.Context, userID string, m domain.Module) (bool, error) {
	g.gated++
	return g.allowed, g.gateErr
}

func (g *fakeGate) RecordRun(ctx context.Context, userID string, m domain.Module) error {
	if g.recordErr != nil {
		return g.recordErr
	}
	g.recorded = append(g.recorded, m)
	return nil
}

func TestExecuteRecordsOnSuccess(t *testing.T) {
	gate := &fakeGate{allowed: true}
	out, err := Execute(context.Background(), gate, "u1", domain.ModuleCVAnalysis, func(context.Context) (string, error) {
		return "summary", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "summary", out)
	assert.Equal(t, []domain.Module{domain.ModuleCVAnalysis}, gate.recorded)
}

func TestExecuteDeniedSkipsAction(t *testing.T) {
	gate := &fakeGate{allowed: false}
	called := false
	_, err := Execute(context.Background(), gate, "u1", domain.ModuleFitAnalysis, func(context.Context) (string, error) {
		called = true
		return "x", nil
	})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.False(t, called)
	assert.Empty(t, gate.recorded)
}

func TestExecuteNothingChargedOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		action func(context.Context) (any, error)
		want   error
	}{
		{"error", func(context.Context) (any, error) { return "partial", domain.ErrProviderFailure }, domain.ErrProviderFailure},
		{"timeout", func(ctx context.Context) (any, error) { return nil, context.DeadlineExceeded }, context.DeadlineExceeded},
		{"blank string", func(context.Context) (any, error) { return "  \n", nil }, domain.ErrEmptyResult},
		{"nil result", func(context.Context) (any, error) { return nil, nil }, domain.ErrEmptyResult},
		{"empty slice", func(context.Context) (any, error) { return []string{}, nil }, domain.ErrEmptyResult},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gate := &fakeGate{allowed: true}
			_, err := Execute(context.Background(), gate, "u1", domain.ModuleJobAnalysis, tc.action)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, gate.recorded)
		})
	}
}

type scored struct{ score int }

func (s scored) Usable() bool { return s.score > 0 }

func TestExecuteUsableInterface(t *testing.T) {
	gate := &fakeGate{allowed: true}
	_, err := Execute(context.Background(), gate, "u1", domain.ModuleFitAnalysis, func(context.Context) (scored, error) {
		return scored{score: 0}, nil
	})
	assert.ErrorIs(t, err, domain.ErrEmptyResult)

	_, err = Execute(context.Background(), gate, "u1", domain.ModuleFitAnalysis, func(context.Context) (scored, error) {
		return scored{score: 61}, nil
	})
	require.NoError(t, err)
	assert.Len(t, gate.recorded, 1)
}

func TestExecutePropagatesGateAndRecordErrors(t *testing.T) {
	gate := &fakeGate{gateErr: domain.ErrNotFound}
	_, err := Execute(context.Background(), gate, "ghost", domain.ModuleCVAnalysis, func(context.Context) (string, error) {
		t.Fatal("action must not run")
		return "", nil
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	gate = &fakeGate{allowed: true, recordErr: domain.ErrStoreWriteFailed}
	out, err := Execute(context.Background(), gate, "u1", domain.ModuleCVAnalysis, func(context.Context) (string, error) {
		return "ok", nil
	})
	assert.True(t, errors.Is(err, domain.ErrStoreWriteFailed))
	assert.Equal(t, "ok", out)
}
