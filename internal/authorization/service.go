// Package authorization runs the claim workflow for capabilities that need
// third-party proof: a claimant submits authority documents, a human reviewer
// approves or rejects, and the verdict is written through to the consent
// ledger and the voice profile.
package authorization

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"everkeep/internal/audit"
	"everkeep/internal/consent"
	"everkeep/internal/voice"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
	"everkeep/pkg/platform/tx"
)

// Auditor is the slice of the audit service this package needs.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) (audit.Event, error)
}

// ConsentLedger is the slice of the consent service the workflow writes
// through.
type ConsentLedger interface {
	Grant(ctx context.Context, params consent.GrantParams) (*consent.Record, error)
	MarkVerified(ctx context.Context, recordID uuid.UUID, reviewerID id.ReviewerID, notes string) (*consent.Record, error)
	RevokeByID(ctx context.Context, recordID uuid.UUID) (*consent.Record, error)
}

// ProfileManager provisions and verdicts voice profiles alongside the
// consent record.
type ProfileManager interface {
	CreateForGrant(ctx context.Context, params voice.CreateParams) (*voice.Profile, error)
	SetVerification(ctx context.Context, memorialID id.MemorialID, status id.VerificationStatus, reason string) (*voice.Profile, error)
}

// Service coordinates the workflow. It holds no state of its own; the
// consent ledger is the system of record and this service sequences the
// writes around a reviewer decision.
type Service struct {
	consents ConsentLedger
	profiles ProfileManager
	audit    Auditor
	runner   tx.Runner
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTxRunner binds each workflow step's writes into one unit of work.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) { s.runner = runner }
}

func New(consents ConsentLedger, profiles ProfileManager, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		consents: consents,
		profiles: profiles,
		audit:    auditor,
		runner:   tx.PassthroughRunner{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit accepts a claim. The consent record it creates starts unverified,
// so the capability stays unusable until a reviewer approves. Voice
// capabilities also get their profile provisioned here, pending the same
// review. The submission event, the consent record, and the profile are one
// unit of work; if the event cannot be recorded, the claim is not accepted.
func (s *Service) Submit(ctx context.Context, sub Submission) (*consent.Record, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	memorialID := sub.MemorialID
	authType := sub.AuthorizationType
	proof := sub.Proof

	var record *consent.Record
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.consents.Grant(ctx, consent.GrantParams{
			ActorID:           sub.ActorID,
			Capability:        sub.Capability,
			MemorialID:        &memorialID,
			AuthorizationType: &authType,
			Proof:             &proof,
			Relationship:      sub.Relationship,
		})
		if err != nil {
			return err
		}

		if sub.Capability.IsVoice() {
			if _, err := s.profiles.CreateForGrant(ctx, voice.CreateParams{
				MemorialID:        memorialID,
				CreatedBy:         sub.ActorID,
				Capability:        sub.Capability,
				AuthorizationType: authType,
				Relationship:      sub.Relationship,
			}); err != nil {
				return err
			}
		}

		if _, err := s.audit.Record(ctx, audit.Entry{
			Kind:       audit.KindAuthorizationSubmitted,
			ActorID:    &sub.ActorID,
			MemorialID: &memorialID,
			SessionID:  audit.SessionFromContext(ctx),
			Client:     audit.ClientFromContext(ctx),
			Metadata: map[string]any{
				"record_id":          record.ID.String(),
				"capability":         sub.Capability.String(),
				"authorization_type": authType.String(),
				"proof_type":         sub.Proof.Type.String(),
			},
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Approve records a reviewer's acceptance: the consent record is marked
// verified and the voice profile, if any, follows.
func (s *Service) Approve(ctx context.Context, recordID uuid.UUID, reviewerID id.ReviewerID, notes string) (*consent.Record, error) {
	var record *consent.Record
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.consents.MarkVerified(ctx, recordID, reviewerID, notes)
		if err != nil {
			return err
		}

		if record.Capability.IsVoice() && record.MemorialID != nil {
			if _, err := s.profiles.SetVerification(ctx, *record.MemorialID, id.VerificationVerified, ""); err != nil {
				return err
			}
		}

		if _, err := s.audit.Record(ctx, audit.Entry{
			Kind:       audit.KindAuthorizationApproved,
			ActorID:    &record.ActorID,
			MemorialID: record.MemorialID,
			SessionID:  audit.SessionFromContext(ctx),
			Client:     audit.ClientFromContext(ctx),
			Metadata: map[string]any{
				"record_id":   record.ID.String(),
				"capability":  record.Capability.String(),
				"reviewer_id": reviewerID.String(),
			},
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Reject records a reviewer's refusal. The consent record is revoked, and a
// rejected voice profile has its samples purged so unverified material does
// not persist. A reason is mandatory: the claimant is told why.
func (s *Service) Reject(ctx context.Context, recordID uuid.UUID, reviewerID id.ReviewerID, reason string) (*consent.Record, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a rejection reason is required")
	}

	var record *consent.Record
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.consents.RevokeByID(ctx, recordID)
		if err != nil {
			return err
		}

		if record.Capability.IsVoice() && record.MemorialID != nil {
			if _, err := s.profiles.SetVerification(ctx, *record.MemorialID, id.VerificationRejected, reason); err != nil {
				return err
			}
		}

		if _, err := s.audit.Record(ctx, audit.Entry{
			Kind:       audit.KindAuthorizationRejected,
			ActorID:    &record.ActorID,
			MemorialID: record.MemorialID,
			SessionID:  audit.SessionFromContext(ctx),
			Client:     audit.ClientFromContext(ctx),
			Metadata: map[string]any{
				"record_id":   record.ID.String(),
				"capability":  record.Capability.String(),
				"reviewer_id": reviewerID.String(),
				"reason":      reason,
			},
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
