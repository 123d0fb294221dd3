// Package ratelimit provides the tier-scoped generation counters consulted
// before a capability profile may produce output. The tier itself comes from
// the billing collaborator; this package only selects the matching table.
package ratelimit

import (
	"context"

	id "everkeep/pkg/domain"
)

// Limits is one tier's generation allowance.
type Limits struct {
	PerDay   int
	PerMonth int
}

// TierLimits maps each plan tier to its generation allowance.
var TierLimits = map[id.PlanTier]Limits{
	id.TierFree:     {PerDay: 2, PerMonth: 10},
	id.TierHeritage: {PerDay: 10, PerMonth: 100},
	id.TierLegacy:   {PerDay: 30, PerMonth: 400},
}

// Decision reports whether another generation is allowed and how much of the
// allowance remains.
type Decision struct {
	Allowed        bool
	Reason         string
	RemainingDay   int
	RemainingMonth int
}

// Limiter tracks generation counts per profile against tier limits.
//
// Allow and Record are separate so the caller can compose the check into a
// larger decision; the caller serializes the check-then-record pair under
// its per-key lock.
type Limiter interface {
	Allow(ctx context.Context, profileID id.ProfileID, tier id.PlanTier) (Decision, error)
	Record(ctx context.Context, profileID id.ProfileID) error
}

func limitsFor(tier id.PlanTier) Limits {
	if l, ok := TierLimits[tier]; ok {
		return l
	}
	// Unknown tiers fall back to the most restrictive table rather than
	// denying outright; billing rollouts must not brick consented actors.
	return TierLimits[id.TierFree]
}

func decide(dayCount, monthCount int, limits Limits) Decision {
	d := Decision{
		RemainingDay:   max(0, limits.PerDay-dayCount),
		RemainingMonth: max(0, limits.PerMonth-monthCount),
	}
	switch {
	case dayCount >= limits.PerDay:
		d.Reason = "daily generation limit reached"
	case monthCount >= limits.PerMonth:
		d.Reason = "monthly generation limit reached"
	default:
		d.Allowed = true
	}
	return d
}
