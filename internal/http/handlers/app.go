package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"careercatalyst/internal/coach"
	"careercatalyst/internal/document"
	"careercatalyst/internal/domain"
	"careercatalyst/internal/identity"
	"careercatalyst/internal/ledger"
	"careercatalyst/internal/metrics"
	"careercatalyst/internal/middleware"
	"careercatalyst/internal/providers/payment"
	"careercatalyst/internal/scrape"
	"careercatalyst/internal/storage"
	"careercatalyst/internal/workflow"
)

// Scraper fetches the readable text of a job posting.
type Scraper interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Billing creates checkout sessions and verifies provider webhooks.
type Billing interface {
	CreateCheckoutSession(ctx context.Context, pkg domain.Package, email, userID string) (string, error)
	ParseWebhook(payload []byte, signature string) (*ledger.PaymentSession, error)
}

// Publisher receives domain events for the analytics worker.
type Publisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

type App struct {
	Logger    zerolog.Logger
	Ledger    *ledger.Ledger
	Identity  *identity.Service
	Sessions  *workflow.Store
	Coach     *coach.Coach
	Scraper   Scraper
	Storage   storage.Store
	Billing   Billing
	Analytics domain.AnalyticsRepository
	Events    Publisher
	Metrics   *metrics.Metrics
	Ready     func(ctx context.Context) error
}

const maxJSONBody = 1 << 20

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorEnvelope{Error: errorBody{Code: errCode, Message: message}})
}

type errorBody struct {
	Code      string                             `json:"code"`
	Message   string                             `json:"message"`
	Email     string                             `json:"email,omitempty"`
	Remaining map[domain.Module]ledger.Remaining `json:"remaining,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// fail maps a service error onto the response envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Code: "internal", Message: "internal error"}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		status, body.Code, body.Message = http.StatusForbidden, "quota_exceeded", "no runs left for this module"
		if userID := middleware.UserIDFromContext(r.Context()); userID != "" && a.Ledger != nil {
			if rem, lerr := a.Ledger.RemainingAll(r.Context(), userID); lerr == nil {
				body.Remaining = rem
			}
		}
	case errors.Is(err, domain.ErrNotFound):
		status, body.Code, body.Message = http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		status, body.Code, body.Message = http.StatusPaymentRequired, "payment_not_completed", "payment was not completed"
	case errors.Is(err, domain.ErrUserNotMatched):
		status, body.Code, body.Message = http.StatusConflict, "user_not_matched", "no account matches the payer email"
	case errors.Is(err, domain.ErrDowngradeConfirm):
		status, body.Code, body.Message = http.StatusConflict, "downgrade_requires_confirmation", "confirm the downgrade to continue"
	case errors.Is(err, domain.ErrDuplicateAccount):
		status, body.Code, body.Message = http.StatusConflict, "account_exists", "an account with this email already exists"
	case errors.Is(err, domain.ErrStoreWriteFailed):
		status, body.Code, body.Message = http.StatusInternalServerError, "store_write_failed", "could not save entitlement"
	case errors.Is(err, domain.ErrProviderFailure):
		status, body.Code, body.Message = http.StatusBadGateway, "provider_failure", "the assistant is unavailable, try again"
	case errors.Is(err, domain.ErrEmptyResult):
		status, body.Code, body.Message = http.StatusBadGateway, "empty_result", "the assistant returned nothing usable"
	case errors.Is(err, domain.ErrInvalidCredentials):
		status, body.Code, body.Message = http.StatusUnauthorized, "invalid_credentials", "wrong email or password"
	case errors.Is(err, domain.ErrUnverifiedAccount):
		status, body.Code, body.Message = http.StatusUnauthorized, "unverified_account", "verify your email first"
	case errors.Is(err, domain.ErrInvalidToken):
		status, body.Code, body.Message = http.StatusBadRequest, "invalid_token", "link is invalid or expired"
	case errors.Is(err, domain.ErrUnsupportedPlan):
		status, body.Code, body.Message = http.StatusBadRequest, "unsupported_plan", "unknown package"
	case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrInvalidEmail):
		status, body.Code, body.Message = http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, document.ErrUnsupportedType):
		status, body.Code, body.Message = http.StatusUnsupportedMediaType, "unsupported_type", "upload a PDF, DOCX or text file"
	case errors.Is(err, document.ErrTooLarge):
		status, body.Code, body.Message = http.StatusRequestEntityTooLarge, "too_large", "file is too large"
	case errors.Is(err, document.ErrNoText):
		status, body.Code, body.Message = http.StatusUnprocessableEntity, "no_text", "no readable text found in the file"
	case errors.Is(err, scrape.ErrInvalidURL):
		status, body.Code, body.Message = http.StatusBadRequest, "invalid_url", "job url is not valid"
	case errors.Is(err, scrape.ErrNoContent):
		status, body.Code, body.Message = http.StatusUnprocessableEntity, "no_content", "no job description found at that url"
	case errors.Is(err, workflow.ErrUnknownStage):
		status, body.Code, body.Message = http.StatusBadRequest, "unknown_stage", err.Error()
	case errors.Is(err, workflow.ErrStageLocked):
		status, body.Code, body.Message = http.StatusConflict, "stage_locked", err.Error()
	case errors.Is(err, workflow.ErrEndOfFlow), errors.Is(err, workflow.ErrStartOfFlow):
		status, body.Code, body.Message = http.StatusConflict, "no_stage", err.Error()
	case errors.Is(err, payment.ErrNotConfigured):
		status, body.Code, body.Message = http.StatusServiceUnavailable, "billing_unavailable", "payments are not configured"
	}
	var se *scrape.StatusError
	if errors.As(err, &se) {
		status, body.Code, body.Message = http.StatusBadGateway, "fetch_failed", se.Error()
	}
	if body.Code == "internal" || status >= http.StatusInternalServerError {
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	a.json(w, status, errorEnvelope{Error: body})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

func (a *App) publish(ctx context.Context, evt domain.Event) {
	if a.Events == nil {
		return
	}
	if country := middleware.CountryFromContext(ctx); country != "" {
		if evt.Metadata == nil {
			evt.Metadata = map[string]string{}
		}
		evt.Metadata["country"] = country
	}
	if err := a.Events.Publish(ctx, evt); err != nil {
		a.Logger.Warn().Err(err).Str("event", evt.Type).Msg("publish event failed")
	}
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}
