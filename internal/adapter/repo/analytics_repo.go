package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"careercatalyst/internal/domain"
	"careercatalyst/internal/infra"
	"careercatalyst/internal/sqlinline"
)

// AnalyticsRepositoryPG implements AnalyticsRepository using PostgreSQL.
type AnalyticsRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAnalyticsRepository constructs the repository.
func NewAnalyticsRepository(sql infra.SQLExecutor) *AnalyticsRepositoryPG {
	return &AnalyticsRepositoryPG{sql: sql}
}

// Apply adds delta to the row for delta.Day, creating it when missing.
func (r *AnalyticsRepositoryPG) Apply(ctx context.Context, delta domain.AnalyticsDaily) error {
	runs := delta.ModuleRuns
	if runs == nil {
		runs = map[domain.Module]int{}
	}
	raw, err := json.Marshal(runs)
	if err != nil {
		return fmt.Errorf("encode module runs: %w", err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QIncrementAnalytics,
		delta.Day.Format("2006-01-02"),
		delta.Signups,
		raw,
		delta.Upgrades,
		delta.UltimateSales,
	)
	return err
}

// GetSummary returns all-time aggregated stats.
func (r *AnalyticsRepositoryPG) GetSummary(ctx context.Context) (*domain.StatsSummary, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QStatsSummary)
	var (
		summary domain.StatsSummary
		runs    []byte
	)
	if err := row.Scan(
		&summary.TotalUsers,
		&summary.ActivePaid,
		&summary.Signups,
		&summary.Upgrades,
		&summary.UltimateSales,
		&runs,
	); err != nil {
		return nil, err
	}
	summary.ModuleRuns = map[domain.Module]int{}
	if len(runs) > 0 {
		if err := json.Unmarshal(runs, &summary.ModuleRuns); err != nil {
			return nil, fmt.Errorf("decode module runs: %w", err)
		}
	}
	return &summary, nil
}

// MemoryAnalyticsRepository accumulates counters in process memory.
type MemoryAnalyticsRepository struct {
	mu      sync.Mutex
	summary domain.StatsSummary
	// users and active feed TotalUsers and ActivePaid when set.
	users  func() int
	active func() int
}

func NewMemoryAnalyticsRepository(users, activePaid func() int) *MemoryAnalyticsRepository {
	return &MemoryAnalyticsRepository{
		summary: domain.StatsSummary{ModuleRuns: map[domain.Module]int{}},
		users:   users,
		active:  activePaid,
	}
}

func (m *MemoryAnalyticsRepository) Apply(ctx context.Context, delta domain.AnalyticsDaily) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary.Signups += delta.Signups
	m.summary.Upgrades += delta.Upgrades
	m.summary.UltimateSales += delta.UltimateSales
	for k, v := range delta.ModuleRuns {
		m.summary.ModuleRuns[k] += v
	}
	return nil
}

func (m *MemoryAnalyticsRepository) GetSummary(ctx context.Context) (*domain.StatsSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.summary
	out.ModuleRuns = make(map[domain.Module]int, len(m.summary.ModuleRuns))
	for k, v := range m.summary.ModuleRuns {
		out.ModuleRuns[k] = v
	}
	if m.users != nil {
		out.TotalUsers = m.users()
	}
	if m.active != nil {
		out.ActivePaid = m.active()
	}
	return &out, nil
}

var (
	_ domain.AnalyticsRepository = (*AnalyticsRepositoryPG)(nil)
	_ domain.AnalyticsRepository = (*MemoryAnalyticsRepository)(nil)
)
