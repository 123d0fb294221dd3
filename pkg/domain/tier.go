package domain

import dErrors "everkeep/pkg/domain-errors"

// PlanTier is the billing plan identifier passed in by the billing
// collaborator. This subsystem only uses it to select the applicable
// generation rate-limit table; it never interprets billing state.
type PlanTier string

const (
	TierFree     PlanTier = "free"
	TierHeritage PlanTier = "heritage"
	TierLegacy   PlanTier = "legacy"
)

var validPlanTiers = map[PlanTier]bool{
	TierFree:     true,
	TierHeritage: true,
	TierLegacy:   true,
}

func ParsePlanTier(s string) (PlanTier, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "plan tier cannot be empty")
	}
	t := PlanTier(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported plan tier: "+s)
	}
	return t, nil
}

func (t PlanTier) IsValid() bool { return validPlanTiers[t] }
func (t PlanTier) String() string { return string(t) }
