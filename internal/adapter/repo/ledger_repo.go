package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"careercatalyst/internal/domain"
	"careercatalyst/internal/infra"
	"careercatalyst/internal/sqlinline"
)

// LedgerRepositoryPG implements domain.LedgerRepository backed by PostgreSQL.
// Subscription changes and the optional payment claim are written by one
// statement, so a failed write leaves the previous record intact.
type LedgerRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewLedgerRepository creates a new LedgerRepositoryPG.
func NewLedgerRepository(sql infra.SQLExecutor) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{sql: sql}
}

func (r *LedgerRepositoryPG) Create(ctx context.Context, rec domain.LedgerRecord) error {
	usage, err := json.Marshal(normalizedUsage(rec.Usage))
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertLedgerRecord,
		rec.UserID,
		rec.Email,
		rec.CreatedAt,
		string(rec.Subscription.Package),
		rec.Subscription.Expiry,
		usage,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateAccount
	}
	return err
}

func (r *LedgerRepositoryPG) Get(ctx context.Context, userID string) (domain.LedgerRecord, error) {
	return scanLedgerRecord(r.sql.QueryRow(ctx, sqlinline.QSelectLedgerRecord, userID))
}

func (r *LedgerRepositoryPG) FindByEmail(ctx context.Context, email string) (domain.LedgerRecord, error) {
	return scanLedgerRecord(r.sql.QueryRow(ctx, sqlinline.QSelectLedgerRecordByEmail, email))
}

func (r *LedgerRepositoryPG) IncrementUsage(ctx context.Context, userID string, module domain.Module) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QIncrementLedgerUsage, userID, string(module))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *LedgerRepositoryPG) ChangeSubscription(ctx context.Context, userID string, sub domain.Subscription, payment *domain.PaymentRef) error {
	usage, err := json.Marshal(domain.ZeroUsage())
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}
	var (
		sessionID *string
		email     *string
		appliedAt *time.Time
	)
	if payment != nil {
		sessionID = &payment.SessionID
		email = &payment.Email
		appliedAt = &payment.AppliedAt
	}
	row := r.sql.QueryRow(ctx, sqlinline.QChangeSubscription,
		userID,
		string(sub.Package),
		sub.Expiry,
		usage,
		sessionID,
		email,
		appliedAt,
	)
	var (
		updated  int64
		replayed bool
	)
	if err := row.Scan(&updated, &replayed); err != nil {
		return err
	}
	if replayed {
		return domain.ErrAlreadyApplied
	}
	if updated == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExpireSubscription reports false when no row matched seen; the caller
// re-reads to tell a moved record from a missing one.
func (r *LedgerRepositoryPG) ExpireSubscription(ctx context.Context, userID string, seen domain.Subscription, resetUsage bool) (bool, error) {
	usage, err := json.Marshal(domain.ZeroUsage())
	if err != nil {
		return false, fmt.Errorf("encode usage: %w", err)
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QExpireSubscription,
		userID,
		string(seen.Package),
		seen.Expiry,
		resetUsage,
		usage,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *LedgerRepositoryPG) AppliedPayment(ctx context.Context, sessionID string) (*domain.PaymentRef, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectPaymentSession, sessionID)
	var (
		ref domain.PaymentRef
		pkg string
	)
	if err := row.Scan(&ref.SessionID, &ref.UserID, &ref.Email, &pkg, &ref.Expiry, &ref.AppliedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	ref.Package = domain.Package(pkg)
	return &ref, nil
}

func scanLedgerRecord(row pgx.Row) (domain.LedgerRecord, error) {
	var (
		rec   domain.LedgerRecord
		pkg   string
		usage []byte
	)
	if err := row.Scan(&rec.UserID, &rec.Email, &rec.CreatedAt, &pkg, &rec.Subscription.Expiry, &usage); err != nil {
		if infra.IsNoRows(err) {
			return domain.LedgerRecord{}, domain.ErrNotFound
		}
		return domain.LedgerRecord{}, err
	}
	rec.Subscription.Package = domain.Package(pkg)
	rec.Usage = domain.Usage{}
	if len(usage) > 0 {
		if err := json.Unmarshal(usage, &rec.Usage); err != nil {
			return domain.LedgerRecord{}, fmt.Errorf("decode usage: %w", err)
		}
	}
	return rec, nil
}

func normalizedUsage(u domain.Usage) domain.Usage {
	out := domain.ZeroUsage()
	for _, m := range domain.Modules {
		if u[m] > 0 {
			out[m] = u[m]
		}
	}
	return out
}

var _ domain.LedgerRepository = (*LedgerRepositoryPG)(nil)
