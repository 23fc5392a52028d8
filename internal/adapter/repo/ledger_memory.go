package repo

import (
	"context"
	"strings"
	"sync"
	"time"

	"careercatalyst/internal/domain"
)

// MemoryLedgerRepository keeps ledger records in process memory. Each method
// holds the lock for its whole read-modify-write.
type MemoryLedgerRepository struct {
	mu       sync.RWMutex
	records  map[string]domain.LedgerRecord
	payments map[string]domain.PaymentRef
}

func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		records:  make(map[string]domain.LedgerRecord),
		payments: make(map[string]domain.PaymentRef),
	}
}

func (m *MemoryLedgerRepository) Create(ctx context.Context, rec domain.LedgerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.UserID]; ok {
		return domain.ErrDuplicateAccount
	}
	email := strings.ToLower(rec.Email)
	for _, existing := range m.records {
		if strings.EqualFold(existing.Email, email) {
			return domain.ErrDuplicateAccount
		}
	}
	stored := rec.Clone()
	stored.Email = email
	stored.Usage = normalizedUsage(rec.Usage)
	m.records[rec.UserID] = stored
	return nil
}

func (m *MemoryLedgerRepository) Get(ctx context.Context, userID string) (domain.LedgerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[userID]
	if !ok {
		return domain.LedgerRecord{}, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryLedgerRepository) FindByEmail(ctx context.Context, email string) (domain.LedgerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.TrimSpace(email)
	for _, rec := range m.records {
		if strings.EqualFold(rec.Email, email) {
			return rec.Clone(), nil
		}
	}
	return domain.LedgerRecord{}, domain.ErrNotFound
}

func (m *MemoryLedgerRepository) IncrementUsage(ctx context.Context, userID string, module domain.Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Usage[module]++
	m.records[userID] = rec
	return nil
}

func (m *MemoryLedgerRepository) ChangeSubscription(ctx context.Context, userID string, sub domain.Subscription, payment *domain.PaymentRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if payment != nil {
		if _, seen := m.payments[payment.SessionID]; seen {
			return domain.ErrAlreadyApplied
		}
	}
	next := rec.Clone()
	next.Subscription = sub
	if sub.Expiry != nil {
		exp := *sub.Expiry
		next.Subscription.Expiry = &exp
	}
	next.Usage = domain.ZeroUsage()
	m.records[userID] = next
	if payment != nil {
		m.payments[payment.SessionID] = *payment
	}
	return nil
}

func (m *MemoryLedgerRepository) ExpireSubscription(ctx context.Context, userID string, seen domain.Subscription, resetUsage bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !sameSubscription(rec.Subscription, seen) {
		return false, nil
	}
	next := rec.Clone()
	next.Subscription = domain.Subscription{Package: domain.PackageFree}
	if resetUsage {
		next.Usage = domain.ZeroUsage()
	}
	m.records[userID] = next
	return true, nil
}

func sameSubscription(a, b domain.Subscription) bool {
	if a.Package != b.Package {
		return false
	}
	if a.Expiry == nil || b.Expiry == nil {
		return a.Expiry == nil && b.Expiry == nil
	}
	return a.Expiry.Equal(*b.Expiry)
}

func (m *MemoryLedgerRepository) AppliedPayment(ctx context.Context, sessionID string) (*domain.PaymentRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.payments[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ref, nil
}

var _ domain.LedgerRepository = (*MemoryLedgerRepository)(nil)

// ActivePaid counts records on an unexpired paid tier.
func (m *MemoryLedgerRepository) ActivePaid(now time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.records {
		exp := rec.Subscription.Expiry
		if rec.Subscription.Package.Paid() && exp != nil && now.Before(*exp) {
			n++
		}
	}
	return n
}
