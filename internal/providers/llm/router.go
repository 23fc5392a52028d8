package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"careercatalyst/internal/domain"
)

const (
	DefaultPoolSize          = 4
	DefaultPrimaryTimeout    = 30 * time.Second
	DefaultStructuredTimeout = 5 * time.Minute
)

type RouterOptions struct {
	Primary           Completer
	Fallback          Completer
	PoolSize          int
	PrimaryTimeout    time.Duration
	StructuredTimeout time.Duration
	Logger            *zerolog.Logger
	// OnFallback fires when the primary provider failed and the fallback is tried.
	OnFallback func(reason string, err error)
	// OnCall fires once per provider attempt with "ok", "timeout" or "error".
	OnCall func(provider, outcome string)
}

// Router bounds concurrent provider calls with a fixed pool. Text calls use a
// short timeout and fall back to the secondary provider; structured calls get
// a long timeout and never fall back.
type Router struct {
	primary           Completer
	fallback          Completer
	pool              *semaphore.Weighted
	primaryTimeout    time.Duration
	structuredTimeout time.Duration
	logger            zerolog.Logger
	onFallback        func(string, error)
	onCall            func(string, string)
}

func NewRouter(opts RouterOptions) (*Router, error) {
	if opts.Primary == nil {
		if opts.Fallback == nil {
			return nil, ErrNotConfigured
		}
		opts.Primary, opts.Fallback = opts.Fallback, nil
	}
	size := opts.PoolSize
	if size <= 0 {
		size = DefaultPoolSize
	}
	primaryTimeout := opts.PrimaryTimeout
	if primaryTimeout <= 0 {
		primaryTimeout = DefaultPrimaryTimeout
	}
	structuredTimeout := opts.StructuredTimeout
	if structuredTimeout <= 0 {
		structuredTimeout = DefaultStructuredTimeout
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Router{
		primary:           opts.Primary,
		fallback:          opts.Fallback,
		pool:              semaphore.NewWeighted(int64(size)),
		primaryTimeout:    primaryTimeout,
		structuredTimeout: structuredTimeout,
		logger:            logger,
		onFallback:        opts.OnFallback,
		onCall:            opts.OnCall,
	}, nil
}

// Complete returns free text from the primary provider, or from the fallback
// when the primary errors or does not answer within the primary timeout.
func (r *Router) Complete(ctx context.Context, req Request) (string, error) {
	if err := r.pool.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("llm: %w: %w", domain.ErrProviderFailure, err)
	}
	defer r.pool.Release(1)

	text, err := r.attempt(ctx, r.primary, req, r.primaryTimeout)
	if err == nil {
		return text, nil
	}
	if r.fallback == nil || ctx.Err() != nil {
		return "", fmt.Errorf("llm: %s: %w: %w", r.primary.Name(), domain.ErrProviderFailure, err)
	}

	reason := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	r.logger.Warn().Err(err).Str("provider", r.primary.Name()).Str("reason", reason).Msg("llm: falling back")
	if r.onFallback != nil {
		r.onFallback(reason, err)
	}

	text, fbErr := r.attempt(ctx, r.fallback, req, r.primaryTimeout)
	if fbErr != nil {
		return "", fmt.Errorf("llm: %s and %s failed: %w: %w", r.primary.Name(), r.fallback.Name(), domain.ErrProviderFailure, errors.Join(err, fbErr))
	}
	return text, nil
}

// CompleteStructured asks the primary provider for JSON matching schema and
// decodes it into out.
func (r *Router) CompleteStructured(ctx context.Context, req Request, out any) error {
	if err := r.pool.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("llm: %w: %w", domain.ErrProviderFailure, err)
	}
	defer r.pool.Release(1)

	req.JSON = true
	text, err := r.attempt(ctx, r.primary, req, r.structuredTimeout)
	if err != nil {
		return fmt.Errorf("llm: structured %s: %w: %w", r.primary.Name(), domain.ErrProviderFailure, err)
	}
	if err := DecodeJSON(text, out); err != nil {
		return fmt.Errorf("llm: structured %s: %w: %w", r.primary.Name(), domain.ErrProviderFailure, err)
	}
	return nil
}

func (r *Router) attempt(ctx context.Context, c Completer, req Request, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	text, err := c.Complete(callCtx, req)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	outcome := "ok"
	switch {
	case err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		outcome = "timeout"
		if !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
	case err != nil:
		outcome = "error"
	}
	if r.onCall != nil {
		r.onCall(c.Name(), outcome)
	}
	r.logger.Debug().Str("provider", c.Name()).Str("outcome", outcome).Dur("elapsed", time.Since(start)).Msg("llm: call")
	return text, err
}
