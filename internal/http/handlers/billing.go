package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"careercatalyst/internal/domain"
	"careercatalyst/internal/ledger"
	"careercatalyst/internal/middleware"
	"careercatalyst/internal/providers/payment"
)

const maxWebhookBody = 64 << 10

type checkoutRequest struct {
	Package          string `json:"package"`
	ConfirmDowngrade bool   `json:"confirm_downgrade"`
}

func (a *App) BillingCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !a.decode(w, r, &req) {
		return
	}
	pkg, ok := domain.ParsePackage(req.Package)
	if !ok || !pkg.Paid() {
		a.error(w, http.StatusBadRequest, "unsupported_plan", "package must be pro or ultimate")
		return
	}
	if a.Billing == nil {
		a.fail(w, r, payment.ErrNotConfigured)
		return
	}
	userID := a.currentUserID(r)
	if err := a.Ledger.CheckPurchase(r.Context(), userID, pkg, req.ConfirmDowngrade); err != nil {
		a.fail(w, r, err)
		return
	}
	email := middleware.EmailFromContext(r.Context())
	if email == "" {
		rec, err := a.Ledger.Record(r.Context(), userID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		email = rec.Email
	}
	url, err := a.Billing.CreateCheckoutSession(r.Context(), pkg, email, userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"url": url})
}

// BillingSuccess is the checkout return page. It reconciles the session
// named in the query string.
func (a *App) BillingSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "session_id required")
		return
	}
	res, err := a.reconcile(r.Context(), sessionID, "redirect")
	if errors.Is(err, domain.ErrUserNotMatched) {
		a.json(w, http.StatusConflict, errorEnvelope{Error: errorBody{
			Code:    "user_not_matched",
			Message: "no account matches the payer email",
			Email:   res.Email,
		}})
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

func (a *App) BillingCancel(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// BillingWebhook reconciles completed checkouts pushed by the payment
// provider. Outcomes a retry cannot change are acknowledged.
func (a *App) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	if a.Billing == nil {
		a.fail(w, r, payment.ErrNotConfigured)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	sess, err := a.Billing.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, payment.ErrNotConfigured) {
		a.fail(w, r, err)
		return
	}
	if err != nil {
		a.Logger.Warn().Err(err).Msg("webhook rejected")
		a.error(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
		return
	}
	if sess == nil {
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	res, err := a.reconcile(r.Context(), sess.ID, "webhook")
	switch {
	case err == nil:
		a.json(w, http.StatusOK, res)
	case errors.Is(err, domain.ErrPaymentNotCompleted),
		errors.Is(err, domain.ErrUserNotMatched),
		errors.Is(err, domain.ErrUnsupportedPlan):
		a.Logger.Warn().Err(err).Str("session_id", sess.ID).Str("email", res.Email).Msg("webhook not applied")
		a.json(w, http.StatusOK, map[string]string{"status": "not_applied"})
	default:
		a.fail(w, r, err)
	}
}

func (a *App) reconcile(ctx context.Context, sessionID, source string) (ledger.Reconciliation, error) {
	res, err := a.Ledger.ReconcilePayment(ctx, sessionID)
	if err != nil || res.Replayed {
		return res, err
	}
	a.Logger.Info().Str("user_id", res.UserID).Str("package", string(res.Package)).Str("source", source).Msg("subscription upgraded")
	a.publish(ctx, domain.Event{
		Type:      domain.EventSubscriptionChanged,
		UserID:    res.UserID,
		Package:   res.Package,
		Metadata:  map[string]string{"session_id": sessionID, "source": source},
		Timestamp: time.Now().UTC(),
	})
	return res, nil
}
