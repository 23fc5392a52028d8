package domain

import (
	"context"
	"time"
)

// UserRepository defines access methods for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	MarkVerified(ctx context.Context, token string) (*User, error)
	SetResetToken(ctx context.Context, userID, token string, expires time.Time) error
	ResetPassword(ctx context.Context, token, passwordHash string, now time.Time) (*User, error)
}

// LedgerRepository persists entitlement ledger records. Every write is a
// single atomic statement.
type LedgerRepository interface {
	Create(ctx context.Context, rec LedgerRecord) error
	Get(ctx context.Context, userID string) (LedgerRecord, error)
	FindByEmail(ctx context.Context, email string) (LedgerRecord, error)
	IncrementUsage(ctx context.Context, userID string, module Module) error
	// ChangeSubscription overwrites package and expiry and zeroes all usage
	// counters. A non-nil payment is claimed in the same write; when its
	// session is already recorded nothing changes and ErrAlreadyApplied is
	// returned.
	ChangeSubscription(ctx context.Context, userID string, sub Subscription, payment *PaymentRef) error
	// ExpireSubscription moves the record to free with no expiry, but only
	// while the stored package and expiry still equal seen. resetUsage zeroes
	// the counters in the same write. It reports false when the record moved
	// on since it was read.
	ExpireSubscription(ctx context.Context, userID string, seen Subscription, resetUsage bool) (bool, error)
	AppliedPayment(ctx context.Context, sessionID string) (*PaymentRef, error)
}

// AnalyticsRepository updates daily counters fed by the events worker.
type AnalyticsRepository interface {
	Apply(ctx context.Context, delta AnalyticsDaily) error
	GetSummary(ctx context.Context) (*StatsSummary, error)
}
