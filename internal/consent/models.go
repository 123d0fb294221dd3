package consent

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

// ProofDocument references an uploaded document backing a third-party
// authorization claim. Storage itself is an external collaborator; only the
// reference lives here.
type ProofDocument struct {
	Type       id.ProofDocumentType `json:"type"`
	StorageRef string               `json:"storageRef"`
}

// Record is one consent decision. Mutable but retained: revocation sets
// RevokedAt, verification sets the Verified fields, and nothing ever
// hard-deletes a row.
type Record struct {
	ID       uuid.UUID
	ActorID  id.ActorID
	// MemorialID is nil for account-wide consents (e.g. data processing).
	MemorialID *id.MemorialID
	Capability id.CapabilityType

	// TextVersion and ConsentText are frozen at grant time. If the legal
	// text changes later, this record still shows what was agreed to.
	TextVersion string
	ConsentText string

	GivenAt   time.Time
	RevokedAt *time.Time

	// Third-party authorization detail, set only for capabilities that
	// require verification.
	AuthorizationType *id.AuthorizationType
	Proof             *ProofDocument
	Relationship      string

	VerifiedAt        *time.Time
	VerifiedBy        *id.ReviewerID
	VerificationNotes string
}

// Active reports whether the record has not been revoked.
func (r *Record) Active() bool { return r.RevokedAt == nil }

// Verified reports whether a reviewer has verified the claim behind this
// record.
func (r *Record) Verified() bool { return r.VerifiedAt != nil }

// Reason explains an invalid consent decision. The values are part of the
// API surface.
type Reason string

const (
	ReasonNoRecord            Reason = "no_record"
	ReasonRevoked             Reason = "revoked"
	ReasonNeedsReconsent      Reason = "needs_reconsent"
	ReasonPendingVerification Reason = "pending_verification"
)

// Decision is the result of a consent check.
type Decision struct {
	Valid  bool
	Reason Reason
	Record *Record
}

// ConsentRequiredError carries the reason a consent check failed and whether
// the caller should route to a re-consent flow (version bump) rather than a
// first-time consent flow.
type ConsentRequiredError struct {
	Reason    Reason
	Reconsent bool
}

func (e *ConsentRequiredError) Error() string {
	if e.Reconsent {
		return fmt.Sprintf("consent required (%s): consent text changed, re-consent needed", e.Reason)
	}
	return fmt.Sprintf("consent required (%s)", e.Reason)
}

// NewConsentRequired wraps a ConsentRequiredError in a coded domain error so
// callers can discriminate with dErrors.HasCode and errors.As alike.
func NewConsentRequired(reason Reason, reconsent bool) error {
	return dErrors.Wrap(
		&ConsentRequiredError{Reason: reason, Reconsent: reconsent},
		dErrors.CodeConsentRequired,
		string(reason),
	)
}
