package ledger

import (
	"time"

	"careercatalyst/internal/domain"
)

// Normalize applies lazy expiry to rec as of now. It reports true when the
// subscription changed and must be written back: an expired or malformed paid
// tier becomes free with no expiry and zeroed usage, while a free record that
// carries a stray expiry only loses the expiry and keeps its counters. The
// usage map is always repaired to exactly the six module keys; that repair
// alone is not reported.
func Normalize(rec domain.LedgerRecord, now time.Time) (domain.LedgerRecord, bool) {
	out := rec.Clone()
	out.Usage = repairUsage(out.Usage)

	changed := false
	switch {
	case out.Subscription.Package == domain.PackageFree:
		if out.Subscription.Expiry != nil {
			out.Subscription.Expiry = nil
			changed = true
		}
	case out.Subscription.Package.Paid():
		exp := out.Subscription.Expiry
		if exp == nil || now.After(*exp) {
			out.Subscription = domain.Subscription{Package: domain.PackageFree}
			out.Usage = domain.ZeroUsage()
			changed = true
		}
	default:
		out.Subscription = domain.Subscription{Package: domain.PackageFree}
		out.Usage = domain.ZeroUsage()
		changed = true
	}
	return out, changed
}

func repairUsage(u domain.Usage) domain.Usage {
	fixed := domain.ZeroUsage()
	for _, m := range domain.Modules {
		if n := u[m]; n > 0 {
			fixed[m] = n
		}
	}
	return fixed
}

// limitFor returns the run limit for a package; unlimited is true for ultimate.
func limitFor(p domain.Package) (limit int, unlimited bool) {
	switch p {
	case domain.PackageUltimate:
		return 0, true
	case domain.PackagePro:
		return ProRunLimit, false
	default:
		return FreeRunLimit, false
	}
}

func allowed(rec domain.LedgerRecord, m domain.Module) bool {
	limit, unlimited := limitFor(rec.Subscription.Package)
	if unlimited {
		return true
	}
	return rec.Usage[m] < limit
}

func remaining(rec domain.LedgerRecord, m domain.Module) Remaining {
	limit, unlimited := limitFor(rec.Subscription.Package)
	if unlimited {
		return Remaining{Unlimited: true}
	}
	left := limit - rec.Usage[m]
	if left < 0 {
		left = 0
	}
	return Remaining{Runs: left}
}
