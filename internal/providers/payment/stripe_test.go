package payment

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"careercatalyst/internal/domain"
)

func newTestStripe(t *testing.T, handler http.HandlerFunc) *Stripe {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	s, err := NewStripe(Options{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
		PricePro:      "price_pro",
		PriceUltimate: "price_ult",
		BaseURL:       "https://coach.example.com/",
		Backend:       backend,
	})
	require.NoError(t, err)
	return s
}

func TestCreateCheckoutSession(t *testing.T) {
	var form url.Values
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_1"}`)
	})

	link, err := s.CreateCheckoutSession(context.Background(), domain.PackageUltimate, "buyer@example.com", "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_1", link)
	assert.Equal(t, "ultimate", form.Get("metadata[package]"))
	assert.Equal(t, "price_ult", form.Get("line_items[0][price]"))
	assert.Equal(t, "buyer@example.com", form.Get("customer_email"))
	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "https://coach.example.com/v1/billing/success?session_id={CHECKOUT_SESSION_ID}", form.Get("success_url"))
}

func TestCreateCheckoutSessionRejectsFree(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := s.CreateCheckoutSession(context.Background(), domain.PackageFree, "a@x.io", "u1")
	assert.ErrorIs(t, err, domain.ErrUnsupportedPlan)
}

func TestRetrieveSession(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions/cs_paid", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cs_paid","object":"checkout.session","payment_status":"paid",
			"metadata":{"package":"pro"},"customer_details":{"email":"Buyer@Example.com"}}`)
	})

	got, err := s.RetrieveSession(context.Background(), "cs_paid")
	require.NoError(t, err)
	assert.True(t, got.Paid)
	assert.Equal(t, domain.PackagePro, got.Package)
	assert.Equal(t, "buyer@example.com", got.Email)
}

func TestRetrieveSessionUnpaidFallsBackToCustomerEmail(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cs_open","object":"checkout.session","payment_status":"unpaid",
			"metadata":{"package":"ultimate"},"customer_email":"late@example.com"}`)
	})

	got, err := s.RetrieveSession(context.Background(), "cs_open")
	require.NoError(t, err)
	assert.False(t, got.Paid)
	assert.Equal(t, "late@example.com", got.Email)
}

func TestRetrieveSessionError(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`)
	})
	_, err := s.RetrieveSession(context.Background(), "cs_missing")
	require.Error(t, err)
	var stripeErr *stripe.Error
	assert.True(t, errors.As(err, &stripeErr))
}

func signedHeader(payload []byte, secret string) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func TestParseWebhook(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {})
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":"paid",
		"metadata":{"package":"ultimate"},"customer_details":{"email":"buyer@example.com"}}}}`)

	got, err := s.ParseWebhook(payload, signedHeader(payload, "whsec_test"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cs_1", got.ID)
	assert.Equal(t, domain.PackageUltimate, got.Package)

	_, err = s.ParseWebhook(payload, signedHeader(payload, "whsec_other"))
	assert.Error(t, err)
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {})
	payload := []byte(`{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
	got, err := s.ParseWebhook(payload, signedHeader(payload, "whsec_test"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewStripeRequiresKey(t *testing.T) {
	_, err := NewStripe(Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
