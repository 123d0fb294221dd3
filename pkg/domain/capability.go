package domain

import dErrors "everkeep/pkg/domain-errors"

// CapabilityType is a discrete sensitive action class gated by consent.
//
// Invariant: the value must be one of the supported capability types.
// Construct via ParseCapabilityType at trust boundaries.
type CapabilityType string

const (
	// CapabilitySelfVoice reproduces the voice of the account holder from
	// recordings they made themselves.
	CapabilitySelfVoice CapabilityType = "self_voice"

	// CapabilityFamilyVoice reproduces the voice of a deceased person on
	// the authority of a living relative. Requires reviewer verification.
	CapabilityFamilyVoice CapabilityType = "family_voice"

	// CapabilityAICompanion drives conversational output in the persona of
	// the deceased. Requires reviewer verification.
	CapabilityAICompanion CapabilityType = "ai_companion"

	CapabilityEventRecording   CapabilityType = "event_recording"
	CapabilityLocationTracking CapabilityType = "location_tracking"
	CapabilityDataProcessing   CapabilityType = "data_processing"
)

// validCapabilities is the single source of truth for supported capabilities.
var validCapabilities = map[CapabilityType]bool{
	CapabilitySelfVoice:        true,
	CapabilityFamilyVoice:      true,
	CapabilityAICompanion:      true,
	CapabilityEventRecording:   true,
	CapabilityLocationTracking: true,
	CapabilityDataProcessing:   true,
}

// capabilitiesRequiringVerification are the identity-reproduction capabilities
// whose grants only become usable after a human reviewer verifies the
// claimant's standing.
var capabilitiesRequiringVerification = map[CapabilityType]bool{
	CapabilityFamilyVoice: true,
	CapabilityAICompanion: true,
}

// ParseCapabilityType constructs a CapabilityType from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseCapabilityType(s string) (CapabilityType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "capability cannot be empty")
	}
	c := CapabilityType(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported capability: "+s)
	}
	return c, nil
}

func (c CapabilityType) IsValid() bool {
	return validCapabilities[c]
}

// RequiresVerification reports whether grants for this capability need a
// reviewer-verified authorization claim before they become usable.
func (c CapabilityType) RequiresVerification() bool {
	return capabilitiesRequiringVerification[c]
}

// IsVoice reports whether the capability operates on a voice profile.
func (c CapabilityType) IsVoice() bool {
	return c == CapabilitySelfVoice || c == CapabilityFamilyVoice
}

func (c CapabilityType) String() string { return string(c) }
