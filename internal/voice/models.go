package voice

import (
	"time"

	id "everkeep/pkg/domain"
)

// Sample thresholds. Floors are product/legal requirements: too little
// material produces an unusable clone and invites misattribution.
const (
	MinSampleSeconds        = 10
	MaxSamples              = 10
	MinTotalSeconds         = 30
	RecommendedTotalSeconds = 120
)

// Sample is one uploaded voice recording. The audio itself lives with the
// storage collaborator; only the reference is kept here.
type Sample struct {
	ID              id.SampleID
	StorageRef      string
	DurationSeconds int
	UploadedAt      time.Time
}

// Profile accumulates the voice material a granted capability operates on.
// One profile per memorial; it mirrors the authorization detail of the grant
// that created it and the verification status of the workflow.
//
// Invariant: TotalDurationSeconds always equals the sum of the current
// samples' durations; it is recomputed on every add/remove, never set
// directly.
//
// Invariant: once RevokedAt is set the samples are purged and the profile
// can no longer generate output, but the row persists for audit continuity.
type Profile struct {
	ID         id.ProfileID
	MemorialID id.MemorialID
	CreatedBy  id.ActorID
	Capability id.CapabilityType

	Samples              []Sample
	TotalDurationSeconds int

	AuthorizationType      id.AuthorizationType
	AuthorizerRelationship string

	VerificationStatus id.VerificationStatus
	RejectionReason    string

	GenerationCount int
	LastGeneratedAt *time.Time

	RevokedAt     *time.Time
	RevokedReason string

	CreatedAt time.Time
}

// Revoked reports whether the profile has been terminated.
func (p *Profile) Revoked() bool { return p.RevokedAt != nil }

// recomputeTotal restores the duration invariant after a sample mutation.
func (p *Profile) recomputeTotal() {
	total := 0
	for _, s := range p.Samples {
		total += s.DurationSeconds
	}
	p.TotalDurationSeconds = total
}

// Sufficiency reports whether the accumulated material can produce output.
// Recommended is a UX hint only, never a gate.
type Sufficiency struct {
	Sufficient    bool
	SecondsNeeded int
	Recommended   bool
}

// SufficiencyOf evaluates the profile's accumulated duration against the
// floors.
func SufficiencyOf(p *Profile) Sufficiency {
	s := Sufficiency{
		Sufficient:  p.TotalDurationSeconds >= MinTotalSeconds,
		Recommended: p.TotalDurationSeconds >= RecommendedTotalSeconds,
	}
	if !s.Sufficient {
		s.SecondsNeeded = MinTotalSeconds - p.TotalDurationSeconds
	}
	return s
}

// GenerateDecision is the outcome of a generation request. Reason carries
// the first failing check only, so the user gets one actionable message.
type GenerateDecision struct {
	Allowed        bool
	Reason         string
	RemainingDay   int
	RemainingMonth int
}
