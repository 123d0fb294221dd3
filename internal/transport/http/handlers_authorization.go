package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"everkeep/internal/authorization"
	"everkeep/internal/consent"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
	"everkeep/pkg/requestcontext"
)

type authorizationHandlers struct {
	workflow *authorization.Service
	logger   *slog.Logger
}

type submitRequest struct {
	MemorialID        string `json:"memorialId"`
	Capability        string `json:"capability"`
	AuthorizationType string `json:"authorizationType"`
	ProofType         string `json:"proofType"`
	ProofStorageRef   string `json:"proofStorageRef"`
	Relationship      string `json:"relationship"`

	Acknowledgments authorization.Acknowledgments `json:"acknowledgments"`
}

// submit handles POST /authorization.
func (h *authorizationHandlers) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	sub, err := h.submission(r, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	record, err := h.workflow.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"record": toRecordResponse(record),
		"status": "pending_verification",
	})
}

func (h *authorizationHandlers) submission(r *http.Request, req submitRequest) (authorization.Submission, error) {
	memorialID, err := id.ParseMemorialID(req.MemorialID)
	if err != nil {
		return authorization.Submission{}, err
	}
	capability, err := id.ParseCapabilityType(req.Capability)
	if err != nil {
		return authorization.Submission{}, err
	}
	authType, err := id.ParseAuthorizationType(req.AuthorizationType)
	if err != nil {
		return authorization.Submission{}, err
	}
	proofType, err := id.ParseProofDocumentType(req.ProofType)
	if err != nil {
		return authorization.Submission{}, err
	}
	return authorization.Submission{
		ActorID:           requestcontext.ActorID(r.Context()),
		MemorialID:        memorialID,
		Capability:        capability,
		AuthorizationType: authType,
		Proof:             consent.ProofDocument{Type: proofType, StorageRef: req.ProofStorageRef},
		Relationship:      req.Relationship,
		Acknowledgments:   req.Acknowledgments,
	}, nil
}

type approveRequest struct {
	Notes string `json:"notes,omitempty"`
}

// approve handles POST /authorization/{id}/approve. Reviewer-only.
func (h *authorizationHandlers) approve(w http.ResponseWriter, r *http.Request) {
	recordID, err := recordIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req approveRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	record, err := h.workflow.Approve(r.Context(), recordID, requestcontext.ReviewerID(r.Context()), req.Notes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(record))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// reject handles POST /authorization/{id}/reject. Reviewer-only.
func (h *authorizationHandlers) reject(w http.ResponseWriter, r *http.Request) {
	recordID, err := recordIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req rejectRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	record, err := h.workflow.Reject(r.Context(), recordID, requestcontext.ReviewerID(r.Context()), req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(record))
}

func recordIDParam(r *http.Request) (uuid.UUID, error) {
	recordID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid record id")
	}
	return recordID, nil
}
