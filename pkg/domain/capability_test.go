package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

func TestParseCapabilityType(t *testing.T) {
	for _, raw := range []string{
		"self_voice", "family_voice", "ai_companion",
		"event_recording", "location_tracking", "data_processing",
	} {
		capability, err := id.ParseCapabilityType(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, raw, capability.String())
		assert.True(t, capability.IsValid())
	}

	_, err := id.ParseCapabilityType("telepathy")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestCapabilityRequiresVerification(t *testing.T) {
	assert.True(t, id.CapabilityFamilyVoice.RequiresVerification())
	assert.True(t, id.CapabilityAICompanion.RequiresVerification())
	assert.False(t, id.CapabilitySelfVoice.RequiresVerification())
	assert.False(t, id.CapabilityDataProcessing.RequiresVerification())
}

func TestCapabilityIsVoice(t *testing.T) {
	assert.True(t, id.CapabilitySelfVoice.IsVoice())
	assert.True(t, id.CapabilityFamilyVoice.IsVoice())
	assert.False(t, id.CapabilityAICompanion.IsVoice())
	assert.False(t, id.CapabilityEventRecording.IsVoice())
}

func TestParsePlanTier(t *testing.T) {
	tier, err := id.ParsePlanTier("heritage")
	require.NoError(t, err)
	assert.Equal(t, id.TierHeritage, tier)

	_, err = id.ParsePlanTier("platinum")
	assert.Error(t, err)
}

func TestParseAuthorizationAndProofTypes(t *testing.T) {
	authType, err := id.ParseAuthorizationType("legal_executor")
	require.NoError(t, err)
	assert.Equal(t, id.AuthorizationLegalExecutor, authType)

	proofType, err := id.ParseProofDocumentType("death_certificate")
	require.NoError(t, err)
	assert.Equal(t, id.ProofDeathCertificate, proofType)

	_, err = id.ParseAuthorizationType("vibes")
	assert.Error(t, err)
	_, err = id.ParseProofDocumentType("napkin_note")
	assert.Error(t, err)
}
