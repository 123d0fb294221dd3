package voice_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"everkeep/internal/audit"
	"everkeep/internal/consent"
	"everkeep/internal/ratelimit"
	"everkeep/internal/voice"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
	"everkeep/pkg/keylock"
)

// stubConsent answers consent checks with a fixed decision.
type stubConsent struct {
	decision consent.Decision
}

func (s *stubConsent) Check(context.Context, id.ActorID, id.CapabilityType, *id.MemorialID) (consent.Decision, error) {
	return s.decision, nil
}

// failingAuditor simulates an unavailable audit store so fail-closed
// behavior can be observed.
type failingAuditor struct{}

func (failingAuditor) Record(context.Context, audit.Entry) (audit.Event, error) {
	return audit.Event{}, dErrors.New(dErrors.CodeStorage, "audit event could not be persisted")
}

type VoiceServiceSuite struct {
	suite.Suite
	store    *voice.InMemoryStore
	audits   *audit.Service
	consents *stubConsent
	limiter  *ratelimit.MemoryLimiter
	service  *voice.Service
	ctx      context.Context

	actorID    id.ActorID
	memorialID id.MemorialID
}

func TestVoiceServiceSuite(t *testing.T) {
	suite.Run(t, new(VoiceServiceSuite))
}

func (s *VoiceServiceSuite) SetupTest() {
	s.store = voice.NewInMemoryStore()
	s.audits = audit.New(audit.NewInMemoryStore(), "voice-test-key")
	s.consents = &stubConsent{decision: consent.Decision{Valid: true}}
	s.limiter = ratelimit.NewMemoryLimiter()
	s.service = voice.New(s.store, s.audits, s.consents, s.limiter, keylock.New())
	s.ctx = context.Background()
	s.actorID = id.NewActorID()
	s.memorialID = id.NewMemorialID()
}

func (s *VoiceServiceSuite) createProfile(capability id.CapabilityType) *voice.Profile {
	profile, err := s.service.CreateForGrant(s.ctx, voice.CreateParams{
		MemorialID:        s.memorialID,
		CreatedBy:         s.actorID,
		Capability:        capability,
		AuthorizationType: id.AuthorizationSelfRecorded,
		Relationship:      "self",
	})
	s.Require().NoError(err)
	return profile
}

func (s *VoiceServiceSuite) addSamples(durations ...int) {
	for i, d := range durations {
		ref := "s3://samples/" + string(rune('a'+i))
		_, err := s.service.AddSample(s.ctx, s.memorialID, s.actorID, ref, d)
		s.Require().NoError(err)
	}
}

func (s *VoiceServiceSuite) TestCreateForGrantVerificationStatus() {
	profile := s.createProfile(id.CapabilitySelfVoice)
	s.Equal(id.VerificationVerified, profile.VerificationStatus)

	other := voice.NewInMemoryStore()
	service := voice.New(other, s.audits, s.consents, s.limiter, keylock.New())
	family, err := service.CreateForGrant(s.ctx, voice.CreateParams{
		MemorialID:        id.NewMemorialID(),
		CreatedBy:         s.actorID,
		Capability:        id.CapabilityFamilyVoice,
		AuthorizationType: id.AuthorizationLegalExecutor,
		Relationship:      "spouse",
	})
	s.Require().NoError(err)
	s.Equal(id.VerificationPending, family.VerificationStatus)
}

func (s *VoiceServiceSuite) TestCreateForGrantRejectsNonVoiceCapability() {
	_, err := s.service.CreateForGrant(s.ctx, voice.CreateParams{
		MemorialID: s.memorialID,
		CreatedBy:  s.actorID,
		Capability: id.CapabilityAICompanion,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *VoiceServiceSuite) TestCreateForGrantReturnsExistingUnrevoked() {
	first := s.createProfile(id.CapabilitySelfVoice)
	second := s.createProfile(id.CapabilitySelfVoice)
	s.Equal(first.ID, second.ID)
}

func (s *VoiceServiceSuite) TestCreateForGrantReinstatesRevokedProfile() {
	first := s.createProfile(id.CapabilitySelfVoice)
	s.addSamples(20)
	_, err := s.service.Revoke(s.ctx, s.memorialID, s.actorID, "changed my mind")
	s.Require().NoError(err)

	reinstated := s.createProfile(id.CapabilitySelfVoice)
	s.Equal(first.ID, reinstated.ID)
	s.False(reinstated.Revoked())
	s.Empty(reinstated.Samples)
}

func (s *VoiceServiceSuite) TestCreateForGrantReinstatesRejectedProfile() {
	first := s.createProfile(id.CapabilityFamilyVoice)
	s.addSamples(20)
	_, err := s.service.SetVerification(s.ctx, s.memorialID, id.VerificationRejected, "insufficient documentation")
	s.Require().NoError(err)

	// A fresh claim restarts review instead of echoing the rejected one.
	reinstated, err := s.service.CreateForGrant(s.ctx, voice.CreateParams{
		MemorialID:        s.memorialID,
		CreatedBy:         s.actorID,
		Capability:        id.CapabilityFamilyVoice,
		AuthorizationType: id.AuthorizationLegalExecutor,
		Relationship:      "child",
	})
	s.Require().NoError(err)
	s.Equal(first.ID, reinstated.ID)
	s.Equal(id.VerificationPending, reinstated.VerificationStatus)
	s.Empty(reinstated.RejectionReason)
	s.Equal(id.AuthorizationLegalExecutor, reinstated.AuthorizationType)
	s.Equal("child", reinstated.AuthorizerRelationship)
	s.Empty(reinstated.Samples)

	stored, err := s.service.Get(s.ctx, s.memorialID)
	s.Require().NoError(err)
	s.Equal(id.VerificationPending, stored.VerificationStatus)
}

func (s *VoiceServiceSuite) TestAddSampleRoundTripsTotalDuration() {
	s.createProfile(id.CapabilitySelfVoice)
	s.addSamples(15, 25, 40)

	profile, err := s.service.Get(s.ctx, s.memorialID)
	s.Require().NoError(err)
	s.Equal(80, profile.TotalDurationSeconds)
	s.Require().Len(profile.Samples, 3)

	_, err = s.service.RemoveSample(s.ctx, s.memorialID, s.actorID, profile.Samples[1].ID)
	s.Require().NoError(err)

	profile, err = s.service.Get(s.ctx, s.memorialID)
	s.Require().NoError(err)
	s.Equal(55, profile.TotalDurationSeconds)
	s.Len(profile.Samples, 2)
}

func (s *VoiceServiceSuite) TestAddSampleCheckOrder() {
	s.createProfile(id.CapabilitySelfVoice)
	s.addSamples(20)
	_, err := s.service.Revoke(s.ctx, s.memorialID, s.actorID, "done")
	s.Require().NoError(err)

	// Revoked outranks the duration floor: a too-short sample against a
	// revoked profile reports revocation.
	_, err = s.service.AddSample(s.ctx, s.memorialID, s.actorID, "s3://late", 3)
	s.True(dErrors.HasCode(err, dErrors.CodeRevoked))
}

func (s *VoiceServiceSuite) TestAddSampleDurationFloor() {
	s.createProfile(id.CapabilitySelfVoice)
	_, err := s.service.AddSample(s.ctx, s.memorialID, s.actorID, "s3://short", 9)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.AddSample(s.ctx, s.memorialID, s.actorID, "s3://ok", 10)
	s.NoError(err)
}

func (s *VoiceServiceSuite) TestAddSampleCap() {
	s.createProfile(id.CapabilitySelfVoice)
	durations := make([]int, voice.MaxSamples)
	for i := range durations {
		durations[i] = 12
	}
	s.addSamples(durations...)

	_, err := s.service.AddSample(s.ctx, s.memorialID, s.actorID, "s3://eleven", 12)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *VoiceServiceSuite) TestAddSampleRequiresOwner() {
	s.createProfile(id.CapabilitySelfVoice)
	_, err := s.service.AddSample(s.ctx, s.memorialID, id.NewActorID(), "s3://x", 20)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *VoiceServiceSuite) TestSufficiency() {
	s.createProfile(id.CapabilitySelfVoice)
	s.addSamples(15)

	sufficiency, err := s.service.Sufficiency(s.ctx, s.memorialID)
	s.Require().NoError(err)
	s.False(sufficiency.Sufficient)
	s.Equal(15, sufficiency.SecondsNeeded)

	s.addSamples(15)
	sufficiency, err = s.service.Sufficiency(s.ctx, s.memorialID)
	s.Require().NoError(err)
	s.True(sufficiency.Sufficient)
	s.Zero(sufficiency.SecondsNeeded)
	s.False(sufficiency.Recommended)

	s.addSamples(45, 45)
	sufficiency, err = s.service.Sufficiency(s.ctx, s.memorialID)
	s.Require().NoError(err)
	s.True(sufficiency.Recommended)
}

func (s *VoiceServiceSuite) TestCanGenerateCheckOrder() {
	// No profile.
	decision, err := s.service.CanGenerate(s.ctx, s.memorialID, id.TierFree)
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal("no voice profile for memorial", decision.Reason)

	// Invalid consent outranks everything else.
	s.createProfile(id.CapabilitySelfVoice)
	s.consents.decision = consent.Decision{Valid: false, Reason: consent.ReasonRevoked}
	decision, err = s.service.CanGenerate(s.ctx, s.memorialID, id.TierFree)
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal("consent revoked", decision.Reason)
	s.consents.decision = consent.Decision{Valid: true}

	// Pending verification.
	_, err = s.service.SetVerification(s.ctx, s.memorialID, id.VerificationPending, "")
	s.Require().NoError(err)
	decision, err = s.service.CanGenerate(s.ctx, s.memorialID, id.TierFree)
	s.Require().NoError(err)
	s.Equal("authorization verification pending", decision.Reason)

	// Insufficient samples.
	_, err = s.service.SetVerification(s.ctx, s.memorialID, id.VerificationVerified, "")
	s.Require().NoError(err)
	decision, err = s.service.CanGenerate(s.ctx, s.memorialID, id.TierFree)
	s.Require().NoError(err)
	s.Contains(decision.Reason, "insufficient voice samples")

	// All preconditions met.
	s.addSamples(20, 20)
	decision, err = s.service.CanGenerate(s.ctx, s.memorialID, id.TierFree)
	s.Require().NoError(err)
	s.True(decision.Allowed)
}

func (s *VoiceServiceSuite) TestGenerateConsumesBudget() {
	s.createProfile(id.CapabilitySelfVoice)
	s.addSamples(20, 20)

	first, err := s.service.Generate(s.ctx, s.memorialID, s.actorID, id.TierFree)
	s.Require().NoError(err)
	s.True(first.Allowed)
	s.Equal(1, first.RemainingDay)

	second, err := s.service.Generate(s.ctx, s.memorialID, s.actorID, id.TierFree)
	s.Require().NoError(err)
	s.True(second.Allowed)
	s.Equal(0, second.RemainingDay)

	third, err := s.service.Generate(s.ctx, s.memorialID, s.actorID, id.TierFree)
	s.Require().NoError(err)
	s.False(third.Allowed)
	s.Equal("daily generation limit reached", third.Reason)

	profile, err := s.service.Get(s.ctx, s.memorialID)
	s.Require().NoError(err)
	s.Equal(2, profile.GenerationCount)
	s.NotNil(profile.LastGeneratedAt)
}

func (s *VoiceServiceSuite) TestGenerateWritesAuditEvent() {
	s.createProfile(id.CapabilitySelfVoice)
	s.addSamples(20, 20)
	_, err := s.service.Generate(s.ctx, s.memorialID, s.actorID, id.TierLegacy)
	s.Require().NoError(err)

	events, err := s.audits.Query(s.ctx, audit.Filter{
		Kinds: []audit.EventKind{audit.KindVoiceGenerated},
	})
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *VoiceServiceSuite) TestRevokePurgesSamplesSynchronously() {
	s.createProfile(id.CapabilitySelfVoice)
	s.addSamples(20, 20, 20)

	revoked, err := s.service.Revoke(s.ctx, s.memorialID, s.actorID, "family request")
	s.Require().NoError(err)
	s.True(revoked.Revoked())
	s.Empty(revoked.Samples)
	s.Zero(revoked.TotalDurationSeconds)
	s.Equal("family request", revoked.RevokedReason)

	// The stored copy is already purged, not just the returned value.
	stored, err := s.service.Get(s.ctx, s.memorialID)
	s.Require().NoError(err)
	s.Empty(stored.Samples)

	events, err := s.audits.Query(s.ctx, audit.Filter{
		Kinds: []audit.EventKind{audit.KindVoiceProfileRevoked},
	})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.EqualValues(3, events[0].Metadata["samples_purged"])
}

func (s *VoiceServiceSuite) TestAddSampleFailsClosedWhenAuditUnavailable() {
	s.createProfile(id.CapabilitySelfVoice)

	failing := voice.New(s.store, failingAuditor{}, s.consents, s.limiter, keylock.New())
	_, err := failing.AddSample(s.ctx, s.memorialID, s.actorID, "s3://lost", 20)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStorage))

	// The unaudited upload must not be stored.
	profile, err := s.service.Get(s.ctx, s.memorialID)
	s.Require().NoError(err)
	s.Empty(profile.Samples)
	s.Zero(profile.TotalDurationSeconds)
}

func (s *VoiceServiceSuite) TestGenerateFailsClosedWhenAuditUnavailable() {
	s.createProfile(id.CapabilitySelfVoice)
	s.addSamples(20, 20)

	failing := voice.New(s.store, failingAuditor{}, s.consents, s.limiter, keylock.New())
	_, err := failing.Generate(s.ctx, s.memorialID, s.actorID, id.TierFree)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStorage))

	// No budget consumed and no generation recorded.
	decision, err := s.service.CanGenerate(s.ctx, s.memorialID, id.TierFree)
	s.Require().NoError(err)
	s.True(decision.Allowed)
	s.Equal(2, decision.RemainingDay)
	profile, err := s.service.Get(s.ctx, s.memorialID)
	s.Require().NoError(err)
	s.Zero(profile.GenerationCount)
}

func (s *VoiceServiceSuite) TestRevokeFailsClosedWhenAuditUnavailable() {
	s.createProfile(id.CapabilitySelfVoice)
	s.addSamples(20)

	failing := voice.New(s.store, failingAuditor{}, s.consents, s.limiter, keylock.New())
	_, err := failing.Revoke(s.ctx, s.memorialID, s.actorID, "unrecorded")
	s.Require().Error(err)

	profile, err := s.service.Get(s.ctx, s.memorialID)
	s.Require().NoError(err)
	s.False(profile.Revoked())
	s.Len(profile.Samples, 1)
}

func (s *VoiceServiceSuite) TestRevokeIsIdempotent() {
	s.createProfile(id.CapabilitySelfVoice)
	_, err := s.service.Revoke(s.ctx, s.memorialID, s.actorID, "first")
	s.Require().NoError(err)
	again, err := s.service.Revoke(s.ctx, s.memorialID, s.actorID, "second")
	s.Require().NoError(err)
	s.Equal("first", again.RevokedReason)
}

func (s *VoiceServiceSuite) TestRejectionPurgesSamples() {
	s.createProfile(id.CapabilityFamilyVoice)
	// Pending profiles still accept samples; the claimant uploads while
	// review is underway.
	s.addSamples(20)

	rejected, err := s.service.SetVerification(s.ctx, s.memorialID, id.VerificationRejected, "document invalid")
	s.Require().NoError(err)
	s.Empty(rejected.Samples)
	s.Equal("document invalid", rejected.RejectionReason)
}
