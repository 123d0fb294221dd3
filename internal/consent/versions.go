package consent

import (
	"sync"

	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

// TextVersion pairs a consent-text version string with the literal text shown
// to the actor. Version comparison is exact string match: any difference,
// higher or lower, means re-consent, because text changes are assumed to be
// substantive.
type TextVersion struct {
	Version string
	Text    string
}

// VersionRegistry holds the current required consent text per capability.
// Grants freeze the registry's current entry into the record; checks compare
// the frozen version against the registry.
type VersionRegistry struct {
	mu       sync.RWMutex
	versions map[id.CapabilityType]TextVersion
}

// DefaultVersions seeds the registry with the launch texts.
func DefaultVersions() *VersionRegistry {
	return &VersionRegistry{versions: map[id.CapabilityType]TextVersion{
		id.CapabilitySelfVoice: {
			Version: "1.0",
			Text: "I consent to Everkeep creating a synthetic reproduction of my own " +
				"voice from recordings I provide, for use in memorial content I control.",
		},
		id.CapabilityFamilyVoice: {
			Version: "1.0",
			Text: "I attest that I hold the authority to permit reproduction of the " +
				"voice of the person this memorial commemorates, and I consent to " +
				"Everkeep creating synthetic voice content on that basis.",
		},
		id.CapabilityAICompanion: {
			Version: "1.0",
			Text: "I consent to Everkeep generating conversational responses in the " +
				"persona of the person this memorial commemorates. I understand the " +
				"output is AI-generated and not the person's own words.",
		},
		id.CapabilityEventRecording: {
			Version: "1.0",
			Text: "I consent to audio and video recording at memorial events I host " +
				"through Everkeep.",
		},
		id.CapabilityLocationTracking: {
			Version: "1.0",
			Text: "I consent to Everkeep storing the physical locations I associate " +
				"with this memorial.",
		},
		id.CapabilityDataProcessing: {
			Version: "1.0",
			Text: "I consent to Everkeep processing the personal data I upload in " +
				"order to provide memorial services.",
		},
	}}
}

// Current returns the required consent text for the capability.
func (r *VersionRegistry) Current(capability id.CapabilityType) (TextVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tv, ok := r.versions[capability]
	if !ok {
		return TextVersion{}, dErrors.New(dErrors.CodeInternal,
			"no consent text registered for capability "+capability.String())
	}
	return tv, nil
}

// Set replaces the required text for a capability. Existing records keep
// their frozen text; subsequent checks report needs_reconsent.
func (r *VersionRegistry) Set(capability id.CapabilityType, tv TextVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[capability] = tv
}
