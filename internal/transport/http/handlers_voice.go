package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"everkeep/internal/gate"
	"everkeep/internal/voice"
	id "everkeep/pkg/domain"
	"everkeep/pkg/requestcontext"
)

type voiceHandlers struct {
	voices *voice.Service
	gate   *gate.Gate
	logger *slog.Logger
}

type sampleResponse struct {
	ID              string    `json:"id"`
	StorageRef      string    `json:"storageRef"`
	DurationSeconds int       `json:"durationSeconds"`
	UploadedAt      time.Time `json:"uploadedAt"`
}

type profileResponse struct {
	ID                   string           `json:"id"`
	MemorialID           string           `json:"memorialId"`
	Capability           string           `json:"capability"`
	Verification         string           `json:"verification"`
	RejectionReason      string           `json:"rejectionReason,omitempty"`
	Samples              []sampleResponse `json:"samples"`
	TotalDurationSeconds int              `json:"totalDurationSeconds"`
	GenerationCount      int              `json:"generationCount"`
	Revoked              bool             `json:"revoked"`
}

func toProfileResponse(p *voice.Profile) profileResponse {
	samples := make([]sampleResponse, 0, len(p.Samples))
	for _, s := range p.Samples {
		samples = append(samples, sampleResponse{
			ID:              s.ID.String(),
			StorageRef:      s.StorageRef,
			DurationSeconds: s.DurationSeconds,
			UploadedAt:      s.UploadedAt,
		})
	}
	return profileResponse{
		ID:                   p.ID.String(),
		MemorialID:           p.MemorialID.String(),
		Capability:           p.Capability.String(),
		Verification:         p.VerificationStatus.String(),
		RejectionReason:      p.RejectionReason,
		Samples:              samples,
		TotalDurationSeconds: p.TotalDurationSeconds,
		GenerationCount:      p.GenerationCount,
		Revoked:              p.Revoked(),
	}
}

func memorialIDParam(r *http.Request) (id.MemorialID, error) {
	return id.ParseMemorialID(chi.URLParam(r, "id"))
}

type addSampleRequest struct {
	StorageRef      string `json:"storageRef"`
	DurationSeconds int    `json:"durationSeconds"`
}

// addSample handles POST /memorials/{id}/voice/samples.
func (h *voiceHandlers) addSample(w http.ResponseWriter, r *http.Request) {
	memorialID, err := memorialIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req addSampleRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	profile, err := h.voices.AddSample(r.Context(), memorialID,
		requestcontext.ActorID(r.Context()), req.StorageRef, req.DurationSeconds)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileResponse(profile))
}

// removeSample handles DELETE /memorials/{id}/voice/samples/{sampleID}.
func (h *voiceHandlers) removeSample(w http.ResponseWriter, r *http.Request) {
	memorialID, err := memorialIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sampleID, err := id.ParseSampleID(chi.URLParam(r, "sampleID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	profile, err := h.voices.RemoveSample(r.Context(), memorialID,
		requestcontext.ActorID(r.Context()), sampleID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// sufficiency handles GET /memorials/{id}/voice/sufficiency.
func (h *voiceHandlers) sufficiency(w http.ResponseWriter, r *http.Request) {
	memorialID, err := memorialIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sufficiency, err := h.voices.Sufficiency(r.Context(), memorialID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sufficient":    sufficiency.Sufficient,
		"secondsNeeded": sufficiency.SecondsNeeded,
		"recommended":   sufficiency.Recommended,
	})
}

type generateRequest struct {
	PlanTier string `json:"planTier"`
}

// generate handles POST /memorials/{id}/voice/generate. The decision comes
// back 200 either way; a denial is an answer, not a transport failure.
func (h *voiceHandlers) generate(w http.ResponseWriter, r *http.Request) {
	memorialID, err := memorialIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req generateRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	tier, err := id.ParsePlanTier(req.PlanTier)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	decision, err := h.gate.AllowGeneration(r.Context(), memorialID,
		requestcontext.ActorID(r.Context()), tier)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed":        decision.Allowed,
		"reason":         decision.Reason,
		"remainingDay":   decision.RemainingDay,
		"remainingMonth": decision.RemainingMonth,
	})
}

// playback handles POST /memorials/{id}/voice/playback.
func (h *voiceHandlers) playback(w http.ResponseWriter, r *http.Request) {
	memorialID, err := memorialIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.voices.RecordPlayback(r.Context(), memorialID, requestcontext.ActorID(r.Context())); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type revokeProfileRequest struct {
	Reason string `json:"reason,omitempty"`
}

// revokeProfile handles POST /memorials/{id}/voice/revoke.
func (h *voiceHandlers) revokeProfile(w http.ResponseWriter, r *http.Request) {
	memorialID, err := memorialIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req revokeProfileRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	profile, err := h.voices.Revoke(r.Context(), memorialID,
		requestcontext.ActorID(r.Context()), req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// getProfile handles GET /memorials/{id}/voice.
func (h *voiceHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	memorialID, err := memorialIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	profile, err := h.voices.Get(r.Context(), memorialID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}
