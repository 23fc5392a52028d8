// Package ledger gates module runs against a user's subscription tier,
// meters completed runs and applies tier changes after payment.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"careercatalyst/internal/domain"
)

const (
	FreeRunLimit = 5
	ProRunLimit  = 100

	// SubscriptionPeriod is how long a purchased tier stays active.
	SubscriptionPeriod = 180 * 24 * time.Hour
)

// PaymentSession is what the payment provider reports about a checkout.
type PaymentSession struct {
	ID      string
	Paid    bool
	Package domain.Package
	Email   string
}

// PaymentProvider looks up checkout sessions.
type PaymentProvider interface {
	RetrieveSession(ctx context.Context, sessionID string) (*PaymentSession, error)
}

// Remaining is the number of runs left for a module, or Unlimited.
type Remaining struct {
	Runs      int
	Unlimited bool
}

func (r Remaining) String() string {
	if r.Unlimited {
		return "unlimited"
	}
	return strconv.Itoa(r.Runs)
}

// MarshalJSON encodes unlimited as the string "unlimited" and counts as numbers.
func (r Remaining) MarshalJSON() ([]byte, error) {
	if r.Unlimited {
		return json.Marshal("unlimited")
	}
	return json.Marshal(r.Runs)
}

func (r *Remaining) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != "unlimited" {
			return fmt.Errorf("ledger: remaining %q", s)
		}
		*r = Remaining{Unlimited: true}
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = Remaining{Runs: n}
	return nil
}

// Reconciliation is the outcome of ReconcilePayment.
type Reconciliation struct {
	Success  bool           `json:"success"`
	Package  domain.Package `json:"package,omitempty"`
	Email    string         `json:"email,omitempty"`
	UserID   string         `json:"-"`
	Replayed bool           `json:"replayed,omitempty"`
}

type Options struct {
	Store    domain.LedgerRepository
	Payments PaymentProvider
	Now      func() time.Time
	Period   time.Duration
	Logger   *zerolog.Logger

	OnGate      func(module domain.Module, allowed bool)
	OnRecord    func(module domain.Module)
	OnReconcile func(outcome string)
}

type Ledger struct {
	store       domain.LedgerRepository
	payments    PaymentProvider
	now         func() time.Time
	period      time.Duration
	logger      zerolog.Logger
	onGate      func(domain.Module, bool)
	onRecord    func(domain.Module)
	onReconcile func(string)
}

func New(opts Options) (*Ledger, error) {
	if opts.Store == nil {
		return nil, errors.New("ledger: store is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	period := opts.Period
	if period <= 0 {
		period = SubscriptionPeriod
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Ledger{
		store:       opts.Store,
		payments:    opts.Payments,
		now:         now,
		period:      period,
		logger:      logger,
		onGate:      opts.OnGate,
		onRecord:    opts.OnRecord,
		onReconcile: opts.OnReconcile,
	}, nil
}

// Period returns the duration applied by ReconcilePayment.
func (l *Ledger) Period() time.Duration { return l.period }

// Open creates the free-tier record for a newly registered user.
func (l *Ledger) Open(ctx context.Context, userID, email string) (domain.LedgerRecord, error) {
	rec := domain.LedgerRecord{
		UserID:       userID,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		CreatedAt:    l.now().UTC(),
		Subscription: domain.Subscription{Package: domain.PackageFree},
		Usage:        domain.ZeroUsage(),
	}
	if err := l.store.Create(ctx, rec); err != nil {
		return domain.LedgerRecord{}, fmt.Errorf("ledger: open %s: %w", userID, err)
	}
	return rec, nil
}

// Record returns the effective ledger record, rewriting an expired tier.
func (l *Ledger) Record(ctx context.Context, userID string) (domain.LedgerRecord, error) {
	return l.load(ctx, userID, true)
}

// IsModuleAllowed reports whether userID may run module now.
func (l *Ledger) IsModuleAllowed(ctx context.Context, userID string, module domain.Module) (bool, error) {
	if !module.Valid() {
		return false, fmt.Errorf("ledger: %w: %q", domain.ErrUnknownModule, module)
	}
	rec, err := l.load(ctx, userID, true)
	if err != nil {
		return false, err
	}
	ok := allowed(rec, module)
	if l.onGate != nil {
		l.onGate(module, ok)
	}
	return ok, nil
}

// RecordRun charges one run of module. Callers gate before acting and call
// this only after the action produced a usable result.
func (l *Ledger) RecordRun(ctx context.Context, userID string, module domain.Module) error {
	if !module.Valid() {
		return fmt.Errorf("ledger: %w: %q", domain.ErrUnknownModule, module)
	}
	if err := l.store.IncrementUsage(ctx, userID, module); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("ledger: user %s: %w", userID, domain.ErrNotFound)
		}
		return fmt.Errorf("ledger: record run: %w: %w", domain.ErrStoreWriteFailed, err)
	}
	if l.onRecord != nil {
		l.onRecord(module)
	}
	return nil
}

// RemainingRuns reports the runs left for module without writing.
func (l *Ledger) RemainingRuns(ctx context.Context, userID string, module domain.Module) (Remaining, error) {
	if !module.Valid() {
		return Remaining{}, fmt.Errorf("ledger: %w: %q", domain.ErrUnknownModule, module)
	}
	rec, err := l.load(ctx, userID, false)
	if err != nil {
		return Remaining{}, err
	}
	return remaining(rec, module), nil
}

// RemainingAll reports remaining runs for every module without writing.
func (l *Ledger) RemainingAll(ctx context.Context, userID string) (map[domain.Module]Remaining, error) {
	rec, err := l.load(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Module]Remaining, len(domain.Modules))
	for _, m := range domain.Modules {
		out[m] = remaining(rec, m)
	}
	return out, nil
}

// ApplyUpgrade sets the package, an absolute expiry of now+duration and zero
// usage in one write. Repeating it with the same inputs and clock converges on
// the same state.
func (l *Ledger) ApplyUpgrade(ctx context.Context, userID string, pkg domain.Package, duration time.Duration) error {
	_, err := l.applyUpgrade(ctx, userID, pkg, duration, nil)
	return err
}

func (l *Ledger) applyUpgrade(ctx context.Context, userID string, pkg domain.Package, duration time.Duration, payment *domain.PaymentRef) (time.Time, error) {
	if !pkg.Paid() {
		return time.Time{}, fmt.Errorf("ledger: %w: %q", domain.ErrUnsupportedPlan, pkg)
	}
	if duration <= 0 {
		return time.Time{}, fmt.Errorf("ledger: upgrade duration must be positive")
	}
	expiry := l.now().UTC().Add(duration)
	sub := domain.Subscription{Package: pkg, Expiry: &expiry}
	if payment != nil {
		payment.Package = pkg
		payment.Expiry = &expiry
		payment.AppliedAt = l.now().UTC()
	}
	if err := l.store.ChangeSubscription(ctx, userID, sub, payment); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return time.Time{}, fmt.Errorf("ledger: user %s: %w", userID, domain.ErrNotFound)
		}
		if errors.Is(err, domain.ErrAlreadyApplied) {
			return time.Time{}, fmt.Errorf("ledger: upgrade %s: %w", userID, err)
		}
		return time.Time{}, fmt.Errorf("ledger: upgrade %s: %w: %w", userID, domain.ErrStoreWriteFailed, err)
	}
	l.logger.Info().Str("user_id", userID).Str("package", string(pkg)).Time("expiry", expiry).Msg("ledger: subscription upgraded")
	return expiry, nil
}

// CheckPurchase validates a checkout for pkg. Buying a lower paid tier
// while a higher one is active needs confirm, since the purchase replaces
// the current tier.
func (l *Ledger) CheckPurchase(ctx context.Context, userID string, pkg domain.Package, confirm bool) error {
	if !pkg.Paid() {
		return fmt.Errorf("ledger: %w: %q", domain.ErrUnsupportedPlan, pkg)
	}
	rec, err := l.load(ctx, userID, false)
	if err != nil {
		return err
	}
	if !confirm && rec.Subscription.Package.Rank() > pkg.Rank() {
		return fmt.Errorf("ledger: %s to %s: %w", rec.Subscription.Package, pkg, domain.ErrDowngradeConfirm)
	}
	return nil
}

// Downgrade returns the user to the free tier and zeroes usage.
func (l *Ledger) Downgrade(ctx context.Context, userID string) error {
	err := l.store.ChangeSubscription(ctx, userID, domain.Subscription{Package: domain.PackageFree}, nil)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("ledger: user %s: %w", userID, domain.ErrNotFound)
		}
		return fmt.Errorf("ledger: downgrade %s: %w: %w", userID, domain.ErrStoreWriteFailed, err)
	}
	return nil
}

// ReconcilePayment resolves a checkout session into a tier upgrade for the
// account whose email matches the payer. A session that was already applied
// is answered from the stored payment without writing again.
func (l *Ledger) ReconcilePayment(ctx context.Context, sessionID string) (Reconciliation, error) {
	res, err := l.reconcile(ctx, strings.TrimSpace(sessionID))
	if l.onReconcile != nil {
		l.onReconcile(reconcileOutcome(res, err))
	}
	return res, err
}

func (l *Ledger) reconcile(ctx context.Context, sessionID string) (Reconciliation, error) {
	if sessionID == "" {
		return Reconciliation{}, errors.New("ledger: session id is required")
	}
	if l.payments == nil {
		return Reconciliation{}, errors.New("ledger: payment provider not configured")
	}

	if res, done, err := l.replay(ctx, sessionID); done || err != nil {
		return res, err
	}

	sess, err := l.payments.RetrieveSession(ctx, sessionID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("ledger: retrieve session %s: %w: %w", sessionID, domain.ErrProviderFailure, err)
	}
	email := strings.ToLower(strings.TrimSpace(sess.Email))
	res := Reconciliation{Email: email}
	if !sess.Paid {
		return res, domain.ErrPaymentNotCompleted
	}
	if !sess.Package.Paid() {
		return res, fmt.Errorf("ledger: session %s: %w: %q", sessionID, domain.ErrUnsupportedPlan, sess.Package)
	}
	res.Package = sess.Package

	rec, err := l.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return res, domain.ErrUserNotMatched
		}
		return res, fmt.Errorf("ledger: find %s: %w", email, err)
	}

	payment := &domain.PaymentRef{SessionID: sessionID, UserID: rec.UserID, Email: email}
	if _, err := l.applyUpgrade(ctx, rec.UserID, sess.Package, l.period, payment); err != nil {
		if errors.Is(err, domain.ErrAlreadyApplied) {
			// A concurrent call claimed the session between the lookup and
			// the write.
			if res, done, rerr := l.replay(ctx, sessionID); done || rerr != nil {
				return res, rerr
			}
		}
		return res, err
	}
	res.Success = true
	res.UserID = rec.UserID
	return res, nil
}

// replay answers from the stored payment when sessionID was already applied.
func (l *Ledger) replay(ctx context.Context, sessionID string) (Reconciliation, bool, error) {
	applied, err := l.store.AppliedPayment(ctx, sessionID)
	switch {
	case err == nil && applied != nil:
		return Reconciliation{
			Success:  true,
			Package:  applied.Package,
			Email:    applied.Email,
			UserID:   applied.UserID,
			Replayed: true,
		}, true, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return Reconciliation{}, false, fmt.Errorf("ledger: lookup payment %s: %w", sessionID, err)
	}
	return Reconciliation{}, false, nil
}

func reconcileOutcome(res Reconciliation, err error) string {
	switch {
	case err == nil && res.Replayed:
		return "replayed"
	case err == nil:
		return "applied"
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		return "unpaid"
	case errors.Is(err, domain.ErrUserNotMatched):
		return "unmatched"
	case errors.Is(err, domain.ErrProviderFailure):
		return "provider_error"
	default:
		return "error"
	}
}

// expireAttempts bounds how often load re-reads a record that kept moving
// under its expiry write.
const expireAttempts = 3

func (l *Ledger) load(ctx context.Context, userID string, persist bool) (domain.LedgerRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.LedgerRecord{}, fmt.Errorf("ledger: empty user id: %w", domain.ErrNotFound)
	}
	for attempt := 0; attempt < expireAttempts; attempt++ {
		rec, err := l.store.Get(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.LedgerRecord{}, fmt.Errorf("ledger: user %s: %w", userID, domain.ErrNotFound)
			}
			return domain.LedgerRecord{}, fmt.Errorf("ledger: load %s: %w", userID, err)
		}
		normalized, changed := Normalize(rec, l.now())
		if !changed || !persist {
			return normalized, nil
		}
		wasPaid := rec.Subscription.Package != domain.PackageFree
		ok, err := l.store.ExpireSubscription(ctx, userID, rec.Subscription, wasPaid)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.LedgerRecord{}, fmt.Errorf("ledger: user %s: %w", userID, domain.ErrNotFound)
			}
			return domain.LedgerRecord{}, fmt.Errorf("ledger: expire %s: %w: %w", userID, domain.ErrStoreWriteFailed, err)
		}
		if !ok {
			// Another writer changed the subscription after the read; judge
			// the fresh record instead.
			l.logger.Debug().Str("user_id", userID).Int("attempt", attempt+1).Msg("ledger: expiry write lost to a concurrent change")
			continue
		}
		if wasPaid {
			l.logger.Info().Str("user_id", userID).Str("previous_package", string(rec.Subscription.Package)).Msg("ledger: subscription expired")
		}
		return normalized, nil
	}
	return domain.LedgerRecord{}, fmt.Errorf("ledger: expire %s: %w: record kept changing", userID, domain.ErrStoreWriteFailed)
}
