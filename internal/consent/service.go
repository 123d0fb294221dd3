package consent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"everkeep/internal/audit"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
	"everkeep/pkg/keylock"
	"everkeep/pkg/platform/sentinel"
	"everkeep/pkg/platform/tx"
)

// Auditor is the slice of the audit service this package needs.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) (audit.Event, error)
}

// Service is the consent ledger. It owns the one-active-record invariant and
// is the only writer of consent state; the authorization workflow mutates
// verification fields through it.
type Service struct {
	store    Store
	versions *VersionRegistry
	audit    Auditor
	locks    *keylock.KeyLock
	runner   tx.Runner
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTxRunner binds mutations and their audit writes into one unit of work.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) { s.runner = runner }
}

func New(store Store, versions *VersionRegistry, auditor Auditor, locks *keylock.KeyLock, opts ...Option) *Service {
	s := &Service{
		store:    store,
		versions: versions,
		audit:    auditor,
		locks:    locks,
		runner:   tx.PassthroughRunner{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GrantParams is the input to Grant.
type GrantParams struct {
	ActorID    id.ActorID
	Capability id.CapabilityType
	MemorialID *id.MemorialID

	// Required for capabilities that need third-party verification.
	AuthorizationType *id.AuthorizationType
	Proof             *ProofDocument
	Relationship      string
}

// lockKey serializes everything touching one (subject, capability) consent
// key. Account-wide consents key on the actor instead.
func lockKey(actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) []string {
	if memorialID != nil {
		return []string{"memorial", memorialID.String(), capability.String()}
	}
	return []string{"actor", actorID.String(), capability.String()}
}

// Grant records a consent decision, freezing the current consent text into
// the record. An existing active record for the same key is superseded: it
// is revoked at grant time and a new row is inserted, so the audit trail
// shows both grants. The audit write and the ledger writes are one unit of
// work; if the event cannot be recorded, no consent becomes active.
func (s *Service) Grant(ctx context.Context, params GrantParams) (*Record, error) {
	if err := s.validateGrant(params); err != nil {
		return nil, err
	}
	current, err := s.versions.Current(params.Capability)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(lockKey(params.ActorID, params.Capability, params.MemorialID)...)
	defer unlock()

	now := time.Now().UTC()

	// A nil prior means this is the first grant for the key.
	prior, err := s.store.FindActive(ctx, params.ActorID, params.Capability, params.MemorialID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to look up prior consent")
	}

	record := &Record{
		ID:                uuid.New(),
		ActorID:           params.ActorID,
		MemorialID:        params.MemorialID,
		Capability:        params.Capability,
		TextVersion:       current.Version,
		ConsentText:       current.Text,
		GivenAt:           now,
		AuthorizationType: params.AuthorizationType,
		Proof:             params.Proof,
		Relationship:      params.Relationship,
	}

	metadata := map[string]any{
		"record_id":    record.ID.String(),
		"capability":   record.Capability.String(),
		"text_version": record.TextVersion,
	}
	if prior != nil {
		metadata["superseded_record_id"] = prior.ID.String()
	}
	if record.AuthorizationType != nil {
		metadata["authorization_type"] = record.AuthorizationType.String()
	}

	err = s.runner.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.audit.Record(ctx, audit.Entry{
			Kind:       grantEventKind(record.Capability),
			ActorID:    &record.ActorID,
			MemorialID: record.MemorialID,
			SessionID:  audit.SessionFromContext(ctx),
			Client:     audit.ClientFromContext(ctx),
			Metadata:   metadata,
		}); err != nil {
			return err
		}
		if prior != nil {
			revokedAt := now
			prior.RevokedAt = &revokedAt
			if err := s.store.Update(ctx, prior); err != nil {
				return dErrors.Wrap(err, dErrors.CodeStorage, "failed to supersede prior consent")
			}
		}
		if err := s.store.Insert(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to store consent record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) validateGrant(params GrantParams) error {
	if params.ActorID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "actor id is required")
	}
	if !params.Capability.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unsupported capability")
	}
	if params.Capability.RequiresVerification() {
		if params.AuthorizationType == nil || !params.AuthorizationType.IsValid() {
			return dErrors.New(dErrors.CodeValidation,
				"capability "+params.Capability.String()+" requires an authorization type")
		}
		if params.Proof == nil || params.Proof.StorageRef == "" || !params.Proof.Type.IsValid() {
			return dErrors.New(dErrors.CodeValidation,
				"capability "+params.Capability.String()+" requires a proof document")
		}
		if params.Relationship == "" {
			return dErrors.New(dErrors.CodeValidation,
				"capability "+params.Capability.String()+" requires a declared relationship")
		}
		if params.MemorialID == nil {
			return dErrors.New(dErrors.CodeValidation,
				"capability "+params.Capability.String()+" requires a memorial")
		}
	}
	return nil
}

// Revoke sets RevokedAt on the active record for the key. A revoke with no
// active record is a no-op but is still audited: the attempt itself is a
// sensitive event.
func (s *Service) Revoke(ctx context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (*Record, error) {
	unlock := s.locks.Lock(lockKey(actorID, capability, memorialID)...)
	defer unlock()

	// A nil record means nothing to revoke; the attempt is still audited.
	record, err := s.store.FindActive(ctx, actorID, capability, memorialID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to look up consent")
	}

	metadata := map[string]any{"capability": capability.String()}
	if record != nil {
		metadata["record_id"] = record.ID.String()
	} else {
		metadata["no_active_record"] = true
	}

	err = s.runner.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.audit.Record(ctx, audit.Entry{
			Kind:       revokeEventKind(capability),
			ActorID:    &actorID,
			MemorialID: memorialID,
			SessionID:  audit.SessionFromContext(ctx),
			Client:     audit.ClientFromContext(ctx),
			Metadata:   metadata,
		}); err != nil {
			return err
		}
		if record != nil {
			now := time.Now().UTC()
			record.RevokedAt = &now
			if err := s.store.Update(ctx, record); err != nil {
				return dErrors.Wrap(err, dErrors.CodeStorage, "failed to revoke consent")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Check is the core consent read. Reasons are evaluated in fixed order so
// the caller gets one actionable answer: no record, revoked, needs
// re-consent, pending verification.
func (s *Service) Check(ctx context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (Decision, error) {
	unlock := s.locks.Lock(lockKey(actorID, capability, memorialID)...)
	defer unlock()
	return s.checkLocked(ctx, actorID, capability, memorialID)
}

// checkLocked evaluates a consent decision. Callers must hold the key lock.
func (s *Service) checkLocked(ctx context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (Decision, error) {
	record, err := s.store.FindLatest(ctx, actorID, capability, memorialID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Decision{Valid: false, Reason: ReasonNoRecord}, nil
	}
	if err != nil {
		return Decision{}, dErrors.Wrap(err, dErrors.CodeStorage, "failed to look up consent")
	}
	if record.RevokedAt != nil {
		return Decision{Valid: false, Reason: ReasonRevoked, Record: record}, nil
	}
	current, err := s.versions.Current(capability)
	if err != nil {
		return Decision{}, err
	}
	// Exact match only: a stored version that differs in either direction
	// means the actor has not agreed to the current text.
	if record.TextVersion != current.Version {
		return Decision{Valid: false, Reason: ReasonNeedsReconsent, Record: record}, nil
	}
	if capability.RequiresVerification() && !record.Verified() {
		return Decision{Valid: false, Reason: ReasonPendingVerification, Record: record}, nil
	}
	return Decision{Valid: true, Record: record}, nil
}

// Require is the fail-fast form of Check: it returns a typed failure carrying
// the reason and whether re-consent (vs. first-time consent) is needed.
func (s *Service) Require(ctx context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) error {
	decision, err := s.Check(ctx, actorID, capability, memorialID)
	if err != nil {
		return err
	}
	if decision.Valid {
		return nil
	}
	switch decision.Reason {
	case ReasonPendingVerification:
		return dErrors.New(dErrors.CodeAuthorizationPending, "authorization is pending review")
	case ReasonRevoked:
		return dErrors.New(dErrors.CodeRevoked, "consent was revoked; a new grant is required")
	case ReasonNeedsReconsent:
		return NewConsentRequired(ReasonNeedsReconsent, true)
	default:
		return NewConsentRequired(ReasonNoRecord, false)
	}
}

// List returns every consent record for the actor, newest first, for the
// actor-facing consent dashboard and data exports.
func (s *Service) List(ctx context.Context, actorID id.ActorID) ([]*Record, error) {
	records, err := s.store.ListByActor(ctx, actorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list consent records")
	}
	return records, nil
}

// MarkVerified records a reviewer approval on a pending record. Used by the
// authorization workflow; the workflow owns the surrounding audit events.
func (s *Service) MarkVerified(ctx context.Context, recordID uuid.UUID, reviewerID id.ReviewerID, notes string) (*Record, error) {
	record, err := s.store.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load consent record")
	}

	unlock := s.locks.Lock(lockKey(record.ActorID, record.Capability, record.MemorialID)...)
	defer unlock()

	// Re-read under the lock: the first read only located the key.
	record, err = s.store.FindByID(ctx, recordID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to reload consent record")
	}

	if !record.Capability.RequiresVerification() {
		return nil, dErrors.New(dErrors.CodeConflict, "capability does not use reviewer verification")
	}
	if record.RevokedAt != nil {
		return nil, dErrors.New(dErrors.CodeRevoked, "record was revoked; nothing to verify")
	}
	if record.Verified() {
		return nil, dErrors.New(dErrors.CodeConflict, "record is already verified")
	}

	now := time.Now().UTC()
	record.VerifiedAt = &now
	record.VerifiedBy = &reviewerID
	record.VerificationNotes = notes
	if err := s.store.Update(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to mark consent verified")
	}
	return record, nil
}

// RevokeByID revokes a specific record regardless of key lookup. Used by the
// authorization workflow when a reviewer rejects a claim.
func (s *Service) RevokeByID(ctx context.Context, recordID uuid.UUID) (*Record, error) {
	record, err := s.store.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load consent record")
	}

	unlock := s.locks.Lock(lockKey(record.ActorID, record.Capability, record.MemorialID)...)
	defer unlock()

	record, err = s.store.FindByID(ctx, recordID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to reload consent record")
	}

	if record.RevokedAt != nil {
		return record, nil
	}
	now := time.Now().UTC()
	record.RevokedAt = &now
	if err := s.store.Update(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to revoke consent record")
	}
	return record, nil
}

// grantEventKind maps a capability to its consent-given audit kind.
func grantEventKind(capability id.CapabilityType) audit.EventKind {
	switch capability {
	case id.CapabilitySelfVoice, id.CapabilityFamilyVoice:
		return audit.KindConsentVoiceGranted
	case id.CapabilityAICompanion:
		return audit.KindConsentCompanionGranted
	case id.CapabilityEventRecording:
		return audit.KindConsentRecordingGranted
	case id.CapabilityLocationTracking:
		return audit.KindConsentLocationGranted
	default:
		return audit.KindConsentDataGranted
	}
}

func revokeEventKind(capability id.CapabilityType) audit.EventKind {
	switch capability {
	case id.CapabilitySelfVoice, id.CapabilityFamilyVoice:
		return audit.KindConsentVoiceRevoked
	case id.CapabilityAICompanion:
		return audit.KindConsentCompanionRevoked
	case id.CapabilityEventRecording:
		return audit.KindConsentRecordingRevoked
	case id.CapabilityLocationTracking:
		return audit.KindConsentLocationRevoked
	default:
		return audit.KindConsentDataRevoked
	}
}
