// Package payment creates and inspects checkout sessions on Stripe.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"careercatalyst/internal/domain"
	"careercatalyst/internal/ledger"
)

const metadataPackage = "package"

// EventCheckoutCompleted is the webhook event that triggers reconciliation.
const EventCheckoutCompleted = "checkout.session.completed"

var ErrNotConfigured = errors.New("payments not configured")

type Options struct {
	SecretKey     string
	WebhookSecret string
	PricePro      string
	PriceUltimate string
	// BaseURL is the public URL of the API used to build redirect links.
	BaseURL string
	// Backend overrides the Stripe API backend.
	Backend stripe.Backend
}

type Stripe struct {
	sessions      *session.Client
	webhookSecret string
	prices        map[domain.Package]string
	baseURL       string
}

func NewStripe(opts Options) (*Stripe, error) {
	key := strings.TrimSpace(opts.SecretKey)
	if key == "" {
		return nil, ErrNotConfigured
	}
	backend := opts.Backend
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Stripe{
		sessions:      &session.Client{B: backend, Key: key},
		webhookSecret: strings.TrimSpace(opts.WebhookSecret),
		prices: map[domain.Package]string{
			domain.PackagePro:      strings.TrimSpace(opts.PricePro),
			domain.PackageUltimate: strings.TrimSpace(opts.PriceUltimate),
		},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}, nil
}

// CreateCheckoutSession starts a one-off payment for pkg and returns the
// hosted checkout URL. The package travels in the session metadata.
func (s *Stripe) CreateCheckoutSession(ctx context.Context, pkg domain.Package, email, userID string) (string, error) {
	price := s.prices[pkg]
	if !pkg.Paid() || price == "" {
		return "", fmt.Errorf("payment: %w: %q", domain.ErrUnsupportedPlan, pkg)
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(price),
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail:     stripe.String(email),
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(s.baseURL + "/v1/billing/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.baseURL + "/v1/billing/cancel"),
	}
	params.Context = ctx
	params.AddMetadata(metadataPackage, string(pkg))

	sess, err := s.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("payment: create checkout: %w", err)
	}
	return sess.URL, nil
}

// RetrieveSession reports payment status, package and payer email.
func (s *Stripe) RetrieveSession(ctx context.Context, sessionID string) (*ledger.PaymentSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.sessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("payment: retrieve %s: %w", sessionID, err)
	}
	return toPaymentSession(sess), nil
}

// ParseWebhook verifies the signature and returns the checkout session of a
// completed checkout. Other event types return nil without error.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*ledger.PaymentSession, error) {
	if s.webhookSecret == "" {
		return nil, fmt.Errorf("payment: webhook secret: %w", ErrNotConfigured)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("payment: verify webhook: %w", err)
	}
	if string(event.Type) != EventCheckoutCompleted {
		return nil, nil
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("payment: decode session: %w", err)
	}
	return toPaymentSession(&sess), nil
}

func toPaymentSession(sess *stripe.CheckoutSession) *ledger.PaymentSession {
	out := &ledger.PaymentSession{
		ID:   sess.ID,
		Paid: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if pkg, ok := domain.ParsePackage(sess.Metadata[metadataPackage]); ok {
		out.Package = pkg
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		out.Email = sess.CustomerDetails.Email
	} else {
		out.Email = sess.CustomerEmail
	}
	out.Email = strings.ToLower(strings.TrimSpace(out.Email))
	return out
}

var _ ledger.PaymentProvider = (*Stripe)(nil)
