package domain

import dErrors "everkeep/pkg/domain-errors"

// AuthorizationType is the legal basis a claimant asserts for authorizing a
// capability on a deceased subject's behalf.
type AuthorizationType string

const (
	AuthorizationLegalExecutor     AuthorizationType = "legal_executor"
	AuthorizationNextOfKin         AuthorizationType = "next_of_kin"
	AuthorizationWrittenPermission AuthorizationType = "written_permission"
	AuthorizationPowerOfAttorney   AuthorizationType = "power_of_attorney"
	AuthorizationSelfRecorded      AuthorizationType = "self_recorded"
	AuthorizationPreMortemConsent  AuthorizationType = "pre_mortem_consent"
	AuthorizationFamilyAuthorized  AuthorizationType = "family_authorized"
)

var validAuthorizationTypes = map[AuthorizationType]bool{
	AuthorizationLegalExecutor:     true,
	AuthorizationNextOfKin:         true,
	AuthorizationWrittenPermission: true,
	AuthorizationPowerOfAttorney:   true,
	AuthorizationSelfRecorded:      true,
	AuthorizationPreMortemConsent:  true,
	AuthorizationFamilyAuthorized:  true,
}

func ParseAuthorizationType(s string) (AuthorizationType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "authorization type cannot be empty")
	}
	a := AuthorizationType(s)
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported authorization type: "+s)
	}
	return a, nil
}

func (a AuthorizationType) IsValid() bool { return validAuthorizationTypes[a] }
func (a AuthorizationType) String() string { return string(a) }

// ProofDocumentType classifies the document a claimant submits to back an
// authorization claim.
type ProofDocumentType string

const (
	ProofDeathCertificate ProofDocumentType = "death_certificate"
	ProofWillExcerpt      ProofDocumentType = "will_excerpt"
	ProofPowerOfAttorney  ProofDocumentType = "power_of_attorney"
	ProofWrittenConsent   ProofDocumentType = "written_consent"
	ProofCourtOrder       ProofDocumentType = "court_order"
	ProofIDDocument       ProofDocumentType = "id_document"
)

var validProofDocumentTypes = map[ProofDocumentType]bool{
	ProofDeathCertificate: true,
	ProofWillExcerpt:      true,
	ProofPowerOfAttorney:  true,
	ProofWrittenConsent:   true,
	ProofCourtOrder:       true,
	ProofIDDocument:       true,
}

func ParseProofDocumentType(s string) (ProofDocumentType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "proof document type cannot be empty")
	}
	p := ProofDocumentType(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported proof document type: "+s)
	}
	return p, nil
}

func (p ProofDocumentType) IsValid() bool { return validProofDocumentTypes[p] }
func (p ProofDocumentType) String() string { return string(p) }

// VerificationStatus is the review state of an authorization claim and of the
// capability profile it backs.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

var validVerificationStatuses = map[VerificationStatus]bool{
	VerificationPending:  true,
	VerificationVerified: true,
	VerificationRejected: true,
}

func ParseVerificationStatus(s string) (VerificationStatus, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "verification status cannot be empty")
	}
	v := VerificationStatus(s)
	if !v.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported verification status: "+s)
	}
	return v, nil
}

func (v VerificationStatus) IsValid() bool { return validVerificationStatuses[v] }
func (v VerificationStatus) String() string { return string(v) }
