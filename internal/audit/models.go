package audit

import (
	"time"

	"github.com/google/uuid"

	id "everkeep/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. It drives
// retention policy and mirror routing, never gating logic.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or regulatory
	// significance. These require durable storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and
	// operational visibility.
	CategoryOperations EventCategory = "operations"
)

// EventKind is the closed taxonomy of sensitive actions. Any new sensitive
// action adds a member here rather than reusing an existing one loosely; the
// taxonomy's precision is what makes exports legally usable.
type EventKind string

const (
	// Consent lifecycle, one pair per capability family.
	KindConsentVoiceGranted     EventKind = "consent_voice_granted"
	KindConsentVoiceRevoked     EventKind = "consent_voice_revoked"
	KindConsentCompanionGranted EventKind = "consent_companion_granted"
	KindConsentCompanionRevoked EventKind = "consent_companion_revoked"
	KindConsentRecordingGranted EventKind = "consent_recording_granted"
	KindConsentRecordingRevoked EventKind = "consent_recording_revoked"
	KindConsentLocationGranted  EventKind = "consent_location_granted"
	KindConsentLocationRevoked  EventKind = "consent_location_revoked"
	KindConsentDataGranted      EventKind = "consent_data_granted"
	KindConsentDataRevoked      EventKind = "consent_data_revoked"

	// Voice profile material and output.
	KindVoiceSampleUploaded EventKind = "voice_sample_uploaded"
	KindVoiceSampleDeleted  EventKind = "voice_sample_deleted"
	KindVoiceGenerated      EventKind = "voice_generated"
	KindVoicePlayed         EventKind = "voice_played"
	KindVoiceProfileRevoked EventKind = "voice_profile_revoked"

	// Authorization workflow transitions.
	KindAuthorizationSubmitted EventKind = "authorization_submitted"
	KindAuthorizationApproved  EventKind = "authorization_approved"
	KindAuthorizationRejected  EventKind = "authorization_rejected"

	// Gate decisions.
	KindGateAllowed EventKind = "gate_allowed"
	KindGateDenied  EventKind = "gate_denied"

	// Crisis and safety signals. Always written synchronously: a crisis
	// event may gate a subsequent safety intervention.
	KindCrisisSignal EventKind = "crisis_signal"

	// Memorial lifecycle, recorded by external collaborators.
	KindMemorialViewed   EventKind = "memorial_viewed"
	KindMemorialCreated  EventKind = "memorial_created"
	KindMemorialUpdated  EventKind = "memorial_updated"
	KindMemorialDeleted  EventKind = "memorial_deleted"
	KindMemorialExported EventKind = "memorial_exported"

	// Account activity.
	KindLogin        EventKind = "login"
	KindLogout       EventKind = "logout"
	KindRegistration EventKind = "registration"

	// Memorial ownership claims.
	KindClaimSubmitted EventKind = "claim_submitted"
	KindClaimApproved  EventKind = "claim_approved"
	KindClaimRejected  EventKind = "claim_rejected"

	// Data subject rights.
	KindDataDeletionRequested EventKind = "data_deletion_requested"
)

// eventCategories maps each kind to its category. Kinds absent here default
// to operations.
var eventCategories = map[EventKind]EventCategory{
	KindConsentVoiceGranted:     CategoryCompliance,
	KindConsentVoiceRevoked:     CategoryCompliance,
	KindConsentCompanionGranted: CategoryCompliance,
	KindConsentCompanionRevoked: CategoryCompliance,
	KindConsentRecordingGranted: CategoryCompliance,
	KindConsentRecordingRevoked: CategoryCompliance,
	KindConsentLocationGranted:  CategoryCompliance,
	KindConsentLocationRevoked:  CategoryCompliance,
	KindConsentDataGranted:      CategoryCompliance,
	KindConsentDataRevoked:      CategoryCompliance,

	KindAuthorizationSubmitted: CategoryCompliance,
	KindAuthorizationApproved:  CategoryCompliance,
	KindAuthorizationRejected:  CategoryCompliance,
	KindVoiceProfileRevoked:    CategoryCompliance,
	KindDataDeletionRequested:  CategoryCompliance,
	KindCrisisSignal:           CategoryCompliance,

	KindGateDenied:     CategorySecurity,
	KindLogin:          CategorySecurity,
	KindLogout:         CategorySecurity,
	KindRegistration:   CategorySecurity,
	KindClaimSubmitted: CategorySecurity,
	KindClaimApproved:  CategorySecurity,
	KindClaimRejected:  CategorySecurity,
}

// Category returns the EventCategory for this kind.
func (k EventKind) Category() EventCategory {
	if cat, ok := eventCategories[k]; ok {
		return cat
	}
	return CategoryOperations
}

// ClientInfo is the network and client metadata attached to events for
// forensic purposes.
type ClientInfo struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Device    string `json:"device,omitempty"`
}

// Event is the immutable audit record. Once written it is never mutated or
// deleted; the only permitted transformation is anonymization of the actor
// field when an actor exercises a data-deletion right.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Kind       EventKind      `json:"eventKind"`
	ActorID    *id.ActorID    `json:"actorId,omitempty"`
	ActorToken string         `json:"actorToken,omitempty"`
	MemorialID *id.MemorialID `json:"subjectId,omitempty"`
	SessionID  *id.SessionID  `json:"sessionId,omitempty"`
	Client     ClientInfo     `json:"client"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Entry is the input to Record. The service assigns ID and timestamp.
type Entry struct {
	Kind       EventKind
	ActorID    *id.ActorID
	MemorialID *id.MemorialID
	SessionID  *id.SessionID
	Client     ClientInfo
	Metadata   map[string]any
}

// Filter narrows Query and Export results. Zero fields match everything.
type Filter struct {
	ActorID    *id.ActorID
	MemorialID *id.MemorialID
	SessionID  *id.SessionID
	Kinds      []EventKind
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
