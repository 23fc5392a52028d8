package domain

import "time"

// Event names published on the career events exchange.
const (
	EventModuleCompleted     = "module.completed"
	EventSubscriptionChanged = "subscription.changed"
	EventUserSignedUp        = "user.signed_up"
)

// Event is the payload exchanged between the API and the analytics worker.
type Event struct {
	Type      string            `json:"type"`
	UserID    string            `json:"user_id"`
	Module    Module            `json:"module,omitempty"`
	Package   Package           `json:"package,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AnalyticsDaily stores aggregated metrics for a specific day.
type AnalyticsDaily struct {
	Day           time.Time
	Signups       int
	ModuleRuns    map[Module]int
	Upgrades      int
	UltimateSales int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StatsSummary is the all-time view served to administrators.
type StatsSummary struct {
	TotalUsers    int            `json:"total_users"`
	ActivePaid    int            `json:"active_paid"`
	Signups       int            `json:"signups"`
	Upgrades      int            `json:"upgrades"`
	UltimateSales int            `json:"ultimate_sales"`
	ModuleRuns    map[Module]int `json:"module_runs"`
}
