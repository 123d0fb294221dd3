// Package voice manages the capability profiles behind voice generation: the
// sample material, its verification state, and the per-profile generation
// budget. Consent itself lives in the consent ledger; this package consults
// it through a narrow interface.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"everkeep/internal/audit"
	"everkeep/internal/consent"
	"everkeep/internal/platform/metrics"
	"everkeep/internal/ratelimit"
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

// ConsentChecker answers whether the consent backing a profile is still
// valid. Implemented by the consent service.
type ConsentChecker interface {
	Check(ctx context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (consent.Decision, error)
}

// Service owns all profile state transitions. Every mutation runs under the
// memorial's voice key lock; the only lock taken while holding it is the
// consent key lock inside ConsentChecker.Check, never the reverse. The
// KeyLock here must not be the instance the consent service uses: shards are
// hashed, and nesting two keys from one sharded lock can land both on the
// same shard.
type Service struct {
	store    Store
	audit    Auditor
	consents ConsentChecker
	limiter  ratelimit.Limiter
	locks    *keylock.KeyLock
	runner   tx.Runner
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTxRunner binds mutations and their audit writes into one unit of work.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) { s.runner = runner }
}

func New(store Store, auditor Auditor, consents ConsentChecker, limiter ratelimit.Limiter, locks *keylock.KeyLock, opts ...Option) *Service {
	s := &Service{
		store:    store,
		audit:    auditor,
		consents: consents,
		limiter:  limiter,
		locks:    locks,
		runner:   tx.PassthroughRunner{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func voiceLockKey(memorialID id.MemorialID) []string {
	return []string{"memorial", memorialID.String(), "voice"}
}

// CreateParams is the input to CreateForGrant.
type CreateParams struct {
	MemorialID        id.MemorialID
	CreatedBy         id.ActorID
	Capability        id.CapabilityType
	AuthorizationType id.AuthorizationType
	Relationship      string
}

// CreateForGrant provisions the profile backing a freshly granted voice
// capability. Self-recorded profiles start verified; third-party profiles
// start pending review. A live profile already present is returned as-is; a
// revoked or rejected one is reinstated under the new claim, starting over
// with no samples and a fresh verification state.
func (s *Service) CreateForGrant(ctx context.Context, params CreateParams) (*Profile, error) {
	if !params.Capability.IsVoice() {
		return nil, dErrors.New(dErrors.CodeValidation, "capability does not carry a voice profile")
	}

	unlock := s.locks.Lock(voiceLockKey(params.MemorialID)...)
	defer unlock()

	status := id.VerificationVerified
	if params.Capability.RequiresVerification() {
		status = id.VerificationPending
	}

	existing, err := s.store.FindByMemorial(ctx, params.MemorialID)
	switch {
	case err == nil:
		if !existing.Revoked() && existing.VerificationStatus != id.VerificationRejected {
			return existing, nil
		}
		existing.Capability = params.Capability
		existing.CreatedBy = params.CreatedBy
		existing.AuthorizationType = params.AuthorizationType
		existing.AuthorizerRelationship = params.Relationship
		existing.VerificationStatus = status
		existing.RejectionReason = ""
		existing.RevokedAt = nil
		existing.RevokedReason = ""
		existing.Samples = nil
		existing.recomputeTotal()
		if err := s.store.Update(ctx, existing); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to reinstate voice profile")
		}
		return existing, nil
	case errors.Is(err, sentinel.ErrNotFound):
		// First profile for this memorial.
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to look up voice profile")
	}

	profile := &Profile{
		ID:                     id.NewProfileID(),
		MemorialID:             params.MemorialID,
		CreatedBy:              params.CreatedBy,
		Capability:             params.Capability,
		AuthorizationType:      params.AuthorizationType,
		AuthorizerRelationship: params.Relationship,
		VerificationStatus:     status,
		CreatedAt:              time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, profile); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to store voice profile")
	}
	return profile, nil
}

// SetVerification records the reviewer's verdict on the profile. A rejection
// purges the samples immediately; rejected material must not linger. The
// authorization workflow owns the surrounding audit events.
func (s *Service) SetVerification(ctx context.Context, memorialID id.MemorialID, status id.VerificationStatus, reason string) (*Profile, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported verification status")
	}

	unlock := s.locks.Lock(voiceLockKey(memorialID)...)
	defer unlock()

	profile, err := s.loadLocked(ctx, memorialID)
	if err != nil {
		return nil, err
	}

	profile.VerificationStatus = status
	profile.RejectionReason = ""
	if status == id.VerificationRejected {
		profile.RejectionReason = reason
		profile.Samples = nil
		profile.recomputeTotal()
	}
	if err := s.store.Update(ctx, profile); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to update voice profile verification")
	}
	return profile, nil
}

// Get returns the profile for a memorial.
func (s *Service) Get(ctx context.Context, memorialID id.MemorialID) (*Profile, error) {
	profile, err := s.store.FindByMemorial(ctx, memorialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no voice profile for memorial")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load voice profile")
	}
	return profile, nil
}

// AddSample appends a recording reference to the profile. Checks run in
// fixed order: revoked profile, duration floor, sample cap.
func (s *Service) AddSample(ctx context.Context, memorialID id.MemorialID, actorID id.ActorID, storageRef string, durationSeconds int) (*Profile, error) {
	if storageRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "sample storage reference is required")
	}

	unlock := s.locks.Lock(voiceLockKey(memorialID)...)
	defer unlock()

	profile, err := s.loadLocked(ctx, memorialID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(profile, actorID); err != nil {
		return nil, err
	}
	if profile.Revoked() {
		return nil, dErrors.New(dErrors.CodeRevoked, "voice profile was revoked")
	}
	if durationSeconds < MinSampleSeconds {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("sample must be at least %d seconds", MinSampleSeconds))
	}
	if len(profile.Samples) >= MaxSamples {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("profile already holds the maximum of %d samples", MaxSamples))
	}

	sample := Sample{
		ID:              id.NewSampleID(),
		StorageRef:      storageRef,
		DurationSeconds: durationSeconds,
		UploadedAt:      time.Now().UTC(),
	}
	profile.Samples = append(profile.Samples, sample)
	profile.recomputeTotal()

	err = s.runner.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.audit.Record(ctx, audit.Entry{
			Kind:       audit.KindVoiceSampleUploaded,
			ActorID:    &actorID,
			MemorialID: &memorialID,
			SessionID:  audit.SessionFromContext(ctx),
			Client:     audit.ClientFromContext(ctx),
			Metadata: map[string]any{
				"sample_id":              sample.ID.String(),
				"duration_seconds":       sample.DurationSeconds,
				"sample_count":           len(profile.Samples),
				"total_duration_seconds": profile.TotalDurationSeconds,
			},
		}); err != nil {
			return err
		}
		if err := s.store.Update(ctx, profile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to store voice sample")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// RemoveSample deletes one recording reference and recomputes the total.
func (s *Service) RemoveSample(ctx context.Context, memorialID id.MemorialID, actorID id.ActorID, sampleID id.SampleID) (*Profile, error) {
	unlock := s.locks.Lock(voiceLockKey(memorialID)...)
	defer unlock()

	profile, err := s.loadLocked(ctx, memorialID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(profile, actorID); err != nil {
		return nil, err
	}

	idx := -1
	for i, sample := range profile.Samples {
		if sample.ID == sampleID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "sample not found")
	}
	removed := profile.Samples[idx]
	profile.Samples = append(profile.Samples[:idx], profile.Samples[idx+1:]...)
	profile.recomputeTotal()

	err = s.runner.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.audit.Record(ctx, audit.Entry{
			Kind:       audit.KindVoiceSampleDeleted,
			ActorID:    &actorID,
			MemorialID: &memorialID,
			SessionID:  audit.SessionFromContext(ctx),
			Client:     audit.ClientFromContext(ctx),
			Metadata: map[string]any{
				"sample_id":              removed.ID.String(),
				"sample_count":           len(profile.Samples),
				"total_duration_seconds": profile.TotalDurationSeconds,
			},
		}); err != nil {
			return err
		}
		if err := s.store.Update(ctx, profile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to remove voice sample")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Sufficiency reports whether the profile's material meets the generation
// floor.
func (s *Service) Sufficiency(ctx context.Context, memorialID id.MemorialID) (Sufficiency, error) {
	profile, err := s.Get(ctx, memorialID)
	if err != nil {
		return Sufficiency{}, err
	}
	return SufficiencyOf(profile), nil
}

// CanGenerate evaluates every generation precondition without consuming
// budget. Same checks and order as Generate.
func (s *Service) CanGenerate(ctx context.Context, memorialID id.MemorialID, tier id.PlanTier) (GenerateDecision, error) {
	unlock := s.locks.Lock(voiceLockKey(memorialID)...)
	defer unlock()

	decision, _, err := s.canGenerateLocked(ctx, memorialID, tier)
	return decision, err
}

// Generate authorizes one generation and consumes budget atomically: the
// check, the counter increment, and the audit write all happen under the
// profile's key lock, so two concurrent requests at the limit boundary
// cannot both pass.
func (s *Service) Generate(ctx context.Context, memorialID id.MemorialID, actorID id.ActorID, tier id.PlanTier) (GenerateDecision, error) {
	unlock := s.locks.Lock(voiceLockKey(memorialID)...)
	defer unlock()

	decision, profile, err := s.canGenerateLocked(ctx, memorialID, tier)
	if err != nil || !decision.Allowed {
		return decision, err
	}

	now := time.Now().UTC()
	profile.GenerationCount++
	profile.LastGeneratedAt = &now

	err = s.runner.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.audit.Record(ctx, audit.Entry{
			Kind:       audit.KindVoiceGenerated,
			ActorID:    &actorID,
			MemorialID: &memorialID,
			SessionID:  audit.SessionFromContext(ctx),
			Client:     audit.ClientFromContext(ctx),
			Metadata: map[string]any{
				"profile_id":       profile.ID.String(),
				"capability":       profile.Capability.String(),
				"generation_count": profile.GenerationCount,
				"plan_tier":        tier.String(),
			},
		}); err != nil {
			return err
		}
		if err := s.limiter.Record(ctx, profile.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to record generation")
		}
		if err := s.store.Update(ctx, profile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to update voice profile")
		}
		return nil
	})
	if err != nil {
		return GenerateDecision{}, err
	}
	if s.metrics != nil {
		s.metrics.Generations.Inc()
	}

	decision.RemainingDay = max(0, decision.RemainingDay-1)
	decision.RemainingMonth = max(0, decision.RemainingMonth-1)
	return decision, nil
}

// canGenerateLocked runs the generation preconditions in fixed order:
// backing consent, verification, revocation, sample sufficiency, rate
// limit. Callers must hold the memorial's voice key lock.
func (s *Service) canGenerateLocked(ctx context.Context, memorialID id.MemorialID, tier id.PlanTier) (GenerateDecision, *Profile, error) {
	profile, err := s.store.FindByMemorial(ctx, memorialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return GenerateDecision{Reason: "no voice profile for memorial"}, nil, nil
		}
		return GenerateDecision{}, nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load voice profile")
	}

	consentDecision, err := s.consents.Check(ctx, profile.CreatedBy, profile.Capability, &memorialID)
	if err != nil {
		return GenerateDecision{}, nil, err
	}
	if !consentDecision.Valid {
		return GenerateDecision{Reason: "consent " + string(consentDecision.Reason)}, nil, nil
	}

	switch profile.VerificationStatus {
	case id.VerificationVerified:
	case id.VerificationRejected:
		return GenerateDecision{Reason: "authorization was rejected"}, nil, nil
	default:
		return GenerateDecision{Reason: "authorization verification pending"}, nil, nil
	}
	if profile.Revoked() {
		return GenerateDecision{Reason: "voice profile was revoked"}, nil, nil
	}
	if sufficiency := SufficiencyOf(profile); !sufficiency.Sufficient {
		return GenerateDecision{
			Reason: fmt.Sprintf("insufficient voice samples: %d more seconds required", sufficiency.SecondsNeeded),
		}, nil, nil
	}

	limit, err := s.limiter.Allow(ctx, profile.ID, tier)
	if err != nil {
		return GenerateDecision{}, nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to check generation limit")
	}
	decision := GenerateDecision{
		Allowed:        limit.Allowed,
		Reason:         limit.Reason,
		RemainingDay:   limit.RemainingDay,
		RemainingMonth: limit.RemainingMonth,
	}
	if !decision.Allowed {
		return decision, nil, nil
	}
	return decision, profile, nil
}

// RecordPlayback audits one playback of already-generated output. Playback
// consumes no budget; it is logged because survivors rely on the trail to
// see how a deceased relative's voice is being used.
func (s *Service) RecordPlayback(ctx context.Context, memorialID id.MemorialID, actorID id.ActorID) error {
	profile, err := s.Get(ctx, memorialID)
	if err != nil {
		return err
	}
	_, err = s.audit.Record(ctx, audit.Entry{
		Kind:       audit.KindVoicePlayed,
		ActorID:    &actorID,
		MemorialID: &memorialID,
		SessionID:  audit.SessionFromContext(ctx),
		Client:     audit.ClientFromContext(ctx),
		Metadata:   map[string]any{"profile_id": profile.ID.String()},
	})
	return err
}

// Revoke terminates the profile and purges its samples in the same write.
// Idempotent. The row itself persists so the generation history keeps its
// anchor.
func (s *Service) Revoke(ctx context.Context, memorialID id.MemorialID, actorID id.ActorID, reason string) (*Profile, error) {
	unlock := s.locks.Lock(voiceLockKey(memorialID)...)
	defer unlock()

	profile, err := s.loadLocked(ctx, memorialID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(profile, actorID); err != nil {
		return nil, err
	}
	if profile.Revoked() {
		return profile, nil
	}

	purged := len(profile.Samples)
	now := time.Now().UTC()
	profile.RevokedAt = &now
	profile.RevokedReason = reason
	profile.Samples = nil
	profile.recomputeTotal()

	err = s.runner.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.audit.Record(ctx, audit.Entry{
			Kind:       audit.KindVoiceProfileRevoked,
			ActorID:    &actorID,
			MemorialID: &memorialID,
			SessionID:  audit.SessionFromContext(ctx),
			Client:     audit.ClientFromContext(ctx),
			Metadata: map[string]any{
				"profile_id":     profile.ID.String(),
				"samples_purged": purged,
				"reason":         reason,
			},
		}); err != nil {
			return err
		}
		if err := s.store.Update(ctx, profile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to revoke voice profile")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Service) loadLocked(ctx context.Context, memorialID id.MemorialID) (*Profile, error) {
	profile, err := s.store.FindByMemorial(ctx, memorialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no voice profile for memorial")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load voice profile")
	}
	return profile, nil
}

func (s *Service) requireOwner(profile *Profile, actorID id.ActorID) error {
	if profile.CreatedBy != actorID {
		return dErrors.New(dErrors.CodeForbidden, "only the profile owner may modify it")
	}
	return nil
}
