package http

import (
	"log/slog"
	"net/http"
	"time"

	"everkeep/internal/consent"
	"everkeep/internal/gate"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
	"everkeep/pkg/requestcontext"
)

type consentHandlers struct {
	consents *consent.Service
	gate     *gate.Gate
	logger   *slog.Logger
}

type grantRequest struct {
	Capability        string `json:"capability"`
	MemorialID        string `json:"memorialId,omitempty"`
	AuthorizationType string `json:"authorizationType,omitempty"`
	ProofType         string `json:"proofType,omitempty"`
	ProofStorageRef   string `json:"proofStorageRef,omitempty"`
	Relationship      string `json:"relationship,omitempty"`
}

type consentRecordResponse struct {
	ID          string     `json:"id"`
	Capability  string     `json:"capability"`
	MemorialID  string     `json:"memorialId,omitempty"`
	TextVersion string     `json:"textVersion"`
	ConsentText string     `json:"consentText"`
	GivenAt     time.Time  `json:"givenAt"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
	Verified    bool       `json:"verified"`
}

func toRecordResponse(r *consent.Record) consentRecordResponse {
	resp := consentRecordResponse{
		ID:          r.ID.String(),
		Capability:  r.Capability.String(),
		TextVersion: r.TextVersion,
		ConsentText: r.ConsentText,
		GivenAt:     r.GivenAt,
		RevokedAt:   r.RevokedAt,
		Verified:    r.Verified(),
	}
	if r.MemorialID != nil {
		resp.MemorialID = r.MemorialID.String()
	}
	return resp
}

// grant handles POST /consent.
func (h *consentHandlers) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	params, err := h.grantParams(r, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	record, err := h.consents.Grant(r.Context(), params)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordResponse(record))
}

func (h *consentHandlers) grantParams(r *http.Request, req grantRequest) (consent.GrantParams, error) {
	capability, err := id.ParseCapabilityType(req.Capability)
	if err != nil {
		return consent.GrantParams{}, err
	}
	params := consent.GrantParams{
		ActorID:      requestcontext.ActorID(r.Context()),
		Capability:   capability,
		Relationship: req.Relationship,
	}
	if req.MemorialID != "" {
		memorialID, err := id.ParseMemorialID(req.MemorialID)
		if err != nil {
			return consent.GrantParams{}, err
		}
		params.MemorialID = &memorialID
	}
	if req.AuthorizationType != "" {
		authType, err := id.ParseAuthorizationType(req.AuthorizationType)
		if err != nil {
			return consent.GrantParams{}, err
		}
		params.AuthorizationType = &authType
	}
	if req.ProofType != "" || req.ProofStorageRef != "" {
		proofType, err := id.ParseProofDocumentType(req.ProofType)
		if err != nil {
			return consent.GrantParams{}, err
		}
		params.Proof = &consent.ProofDocument{Type: proofType, StorageRef: req.ProofStorageRef}
	}
	return params, nil
}

type revokeConsentRequest struct {
	Capability string `json:"capability"`
	MemorialID string `json:"memorialId,omitempty"`
}

// revoke handles POST /consent/revoke.
func (h *consentHandlers) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeConsentRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	capability, err := id.ParseCapabilityType(req.Capability)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var memorialID *id.MemorialID
	if req.MemorialID != "" {
		m, err := id.ParseMemorialID(req.MemorialID)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		memorialID = &m
	}
	record, err := h.consents.Revoke(r.Context(), requestcontext.ActorID(r.Context()), capability, memorialID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := map[string]any{"revoked": record != nil}
	if record != nil {
		resp["record"] = toRecordResponse(record)
	}
	writeJSON(w, http.StatusOK, resp)
}

// check handles GET /consent/check. It goes through the gate so the lookup
// itself lands in the audit trail.
func (h *consentHandlers) check(w http.ResponseWriter, r *http.Request) {
	capability, err := id.ParseCapabilityType(r.URL.Query().Get("capability"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var memorialID *id.MemorialID
	if raw := r.URL.Query().Get("memorialId"); raw != "" {
		m, err := id.ParseMemorialID(raw)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		memorialID = &m
	}
	decision, err := h.gate.Allow(r.Context(), requestcontext.ActorID(r.Context()), capability, memorialID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := map[string]any{"valid": decision.Valid}
	if !decision.Valid {
		resp["reason"] = string(decision.Reason)
	}
	if decision.Record != nil {
		resp["record"] = toRecordResponse(decision.Record)
	}
	writeJSON(w, http.StatusOK, resp)
}

// list handles GET /consent: the actor's full consent history, newest first.
func (h *consentHandlers) list(w http.ResponseWriter, r *http.Request) {
	actorID := requestcontext.ActorID(r.Context())
	if actorID.IsNil() {
		writeError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	records, err := h.consents.List(r.Context(), actorID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]consentRecordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toRecordResponse(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}
