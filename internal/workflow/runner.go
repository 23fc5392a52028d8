package workflow

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"careercatalyst/internal/domain"
)

// Gate is the subset of the ledger needed to meter a module run.
type Gate interface {
	IsModuleAllowed(ctx context.Context, userID string, module domain.Module) (bool, error)
	RecordRun(ctx context.Context, userID string, module domain.Module) error
}

// Usable lets a result type decide whether it is worth charging for.
type Usable interface {
	Usable() bool
}

// Execute checks the gate, runs action and records one run of module only
// when action returned a usable result and no error. A denied gate yields
// domain.ErrQuotaExceeded and action is not called. If recording fails the
// result is still returned together with the error.
func Execute[T any](ctx context.Context, gate Gate, userID string, module domain.Module, action func(context.Context) (T, error)) (T, error) {
	var zero T
	ok, err := gate.IsModuleAllowed(ctx, userID, module)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("workflow: %s: %w", module, domain.ErrQuotaExceeded)
	}

	result, err := action(ctx)
	if err != nil {
		return zero, err
	}
	if !usable(result) {
		return zero, fmt.Errorf("workflow: %s: %w", module, domain.ErrEmptyResult)
	}

	if err := gate.RecordRun(ctx, userID, module); err != nil {
		return result, err
	}
	return result, nil
}

func usable(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case Usable:
		return x.Usable()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return !rv.IsZero()
}
