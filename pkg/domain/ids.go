// Package domain holds the identifier and enum types shared across the
// subsystem. IDs are distinct UUID wrappers so the compiler rejects mixing an
// actor with a memorial; enums are closed sets constructed through Parse
// functions at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "everkeep/pkg/domain-errors"
)

// Typed identifiers.
//
// Invariant: a non-zero value is a valid, non-nil UUID. Construct via the
// Parse functions at trust boundaries; direct casting bypasses validation.
type (
	// ActorID identifies a living account holder acting in the system.
	ActorID uuid.UUID

	// MemorialID identifies the memorial (the deceased subject) an action
	// is performed about.
	MemorialID uuid.UUID

	// SessionID identifies the client session an action arrived on.
	SessionID uuid.UUID

	// ProfileID identifies a capability profile (e.g. a voice profile).
	ProfileID uuid.UUID

	// SampleID identifies a single uploaded capability sample.
	SampleID uuid.UUID

	// ReviewerID identifies the staff member approving or rejecting an
	// authorization claim.
	ReviewerID uuid.UUID
)

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be the nil UUID")
	}
	return u, nil
}

func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s, "actor id")
	return ActorID(u), err
}

func ParseMemorialID(s string) (MemorialID, error) {
	u, err := parseUUID(s, "memorial id")
	return MemorialID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

func ParseProfileID(s string) (ProfileID, error) {
	u, err := parseUUID(s, "profile id")
	return ProfileID(u), err
}

func ParseSampleID(s string) (SampleID, error) {
	u, err := parseUUID(s, "sample id")
	return SampleID(u), err
}

func ParseReviewerID(s string) (ReviewerID, error) {
	u, err := parseUUID(s, "reviewer id")
	return ReviewerID(u), err
}

func (id ActorID) String() string    { return uuid.UUID(id).String() }
func (id MemorialID) String() string { return uuid.UUID(id).String() }
func (id SessionID) String() string  { return uuid.UUID(id).String() }
func (id ProfileID) String() string  { return uuid.UUID(id).String() }
func (id SampleID) String() string   { return uuid.UUID(id).String() }
func (id ReviewerID) String() string { return uuid.UUID(id).String() }

func (id ActorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id MemorialID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ProfileID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SampleID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ReviewerID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewActorID and friends mint fresh identifiers. Used by services and tests;
// external input always goes through Parse.
func NewActorID() ActorID       { return ActorID(uuid.New()) }
func NewMemorialID() MemorialID { return MemorialID(uuid.New()) }
func NewSessionID() SessionID   { return SessionID(uuid.New()) }
func NewProfileID() ProfileID   { return ProfileID(uuid.New()) }
func NewSampleID() SampleID     { return SampleID(uuid.New()) }
func NewReviewerID() ReviewerID { return ReviewerID(uuid.New()) }
