package domain

import (
	"strings"
	"time"
)

// Package enumerates subscription tiers.
type Package string

const (
	PackageFree     Package = "free"
	PackagePro      Package = "pro"
	PackageUltimate Package = "ultimate"
)

// ParsePackage normalizes user input into a known Package.
func ParsePackage(raw string) (Package, bool) {
	switch Package(strings.ToLower(strings.TrimSpace(raw))) {
	case PackageFree:
		return PackageFree, true
	case PackagePro:
		return PackagePro, true
	case PackageUltimate:
		return PackageUltimate, true
	}
	return "", false
}

// Paid reports whether the package is purchased through checkout.
func (p Package) Paid() bool {
	return p == PackagePro || p == PackageUltimate
}

// Rank orders packages from free to ultimate.
func (p Package) Rank() int {
	switch p {
	case PackagePro:
		return 1
	case PackageUltimate:
		return 2
	}
	return 0
}

// Module identifies one of the six workflow stages that carry a usage counter.
type Module string

const (
	ModuleCVAnalysis         Module = "Module 1"
	ModuleJobAnalysis        Module = "Module 2"
	ModuleFitAnalysis        Module = "Module 3"
	ModuleCVImprovement      Module = "Module 4"
	ModuleInterviewQuestions Module = "Module 5"
	ModulePracticeInterview  Module = "Module 6"
)

// Modules lists every metered module in workflow order.
var Modules = []Module{
	ModuleCVAnalysis,
	ModuleJobAnalysis,
	ModuleFitAnalysis,
	ModuleCVImprovement,
	ModuleInterviewQuestions,
	ModulePracticeInterview,
}

var moduleTitles = map[Module]string{
	ModuleCVAnalysis:         "CV analysis",
	ModuleJobAnalysis:        "Job analysis",
	ModuleFitAnalysis:        "Fit analysis",
	ModuleCVImprovement:      "CV improvement",
	ModuleInterviewQuestions: "Interview questions",
	ModulePracticeInterview:  "Practice interview",
}

// Valid reports whether m is one of the six known modules.
func (m Module) Valid() bool {
	_, ok := moduleTitles[m]
	return ok
}

// Title returns the human readable module name.
func (m Module) Title() string {
	return moduleTitles[m]
}

// Usage maps each module to its run count in the current subscription period.
type Usage map[Module]int

// ZeroUsage returns a usage map with all six modules set to zero.
func ZeroUsage() Usage {
	u := make(Usage, len(Modules))
	for _, m := range Modules {
		u[m] = 0
	}
	return u
}

// Clone copies the usage map.
func (u Usage) Clone() Usage {
	out := make(Usage, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// Subscription is the tier part of a ledger record.
type Subscription struct {
	Package Package    `json:"package"`
	Expiry  *time.Time `json:"expiry"`
}

// LedgerRecord is the per-user entitlement state.
type LedgerRecord struct {
	UserID       string       `json:"user_id"`
	Email        string       `json:"email"`
	CreatedAt    time.Time    `json:"created_at"`
	Subscription Subscription `json:"subscription"`
	Usage        Usage        `json:"usage"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r LedgerRecord) Clone() LedgerRecord {
	out := r
	out.Usage = r.Usage.Clone()
	if r.Subscription.Expiry != nil {
		exp := *r.Subscription.Expiry
		out.Subscription.Expiry = &exp
	}
	return out
}

// PaymentRef remembers a reconciled checkout session.
type PaymentRef struct {
	SessionID string     `json:"session_id"`
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	Package   Package    `json:"package"`
	Expiry    *time.Time `json:"expiry"`
	AppliedAt time.Time  `json:"applied_at"`
}
