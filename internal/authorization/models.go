package authorization

import (
	"everkeep/internal/consent"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

// Acknowledgments are the three statements a claimant must individually
// affirm before a claim is accepted. They are separate fields, not one
// blanket checkbox, so each refusal can be reported on its own.
type Acknowledgments struct {
	AIDisclosureAccepted   bool `json:"aiDisclosureAccepted"`
	RevocationUnderstood   bool `json:"revocationUnderstood"`
	ResponsibilityAccepted bool `json:"responsibilityAccepted"`
}

// Validate reports the first missing acknowledgment.
func (a Acknowledgments) Validate() error {
	switch {
	case !a.AIDisclosureAccepted:
		return dErrors.New(dErrors.CodeValidation,
			"claimant must acknowledge that generated output is synthetic and imperfect")
	case !a.RevocationUnderstood:
		return dErrors.New(dErrors.CodeValidation,
			"claimant must acknowledge that consent is revocable at any time")
	case !a.ResponsibilityAccepted:
		return dErrors.New(dErrors.CodeValidation,
			"claimant must accept responsibility for appropriate use of generated output")
	}
	return nil
}

// Submission is a claim that an actor holds authority over a memorial's
// capability. It becomes a pending consent record plus, for voice
// capabilities, an unverified profile.
type Submission struct {
	ActorID    id.ActorID
	MemorialID id.MemorialID
	Capability id.CapabilityType

	AuthorizationType id.AuthorizationType
	Proof             consent.ProofDocument
	Relationship      string

	Acknowledgments Acknowledgments
}

// Validate checks the parts of the bundle the workflow itself owns; the
// consent ledger re-validates the grant fields on insert.
func (s Submission) Validate() error {
	if err := s.Acknowledgments.Validate(); err != nil {
		return err
	}
	if s.ActorID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "actor id is required")
	}
	if s.MemorialID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "memorial id is required")
	}
	if !s.Capability.RequiresVerification() && !s.Capability.IsVoice() {
		return dErrors.New(dErrors.CodeValidation,
			"capability "+s.Capability.String()+" does not use the authorization workflow")
	}
	return nil
}
