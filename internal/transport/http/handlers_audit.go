package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"everkeep/internal/audit"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
	"everkeep/pkg/requestcontext"
)

type auditHandlers struct {
	audits *audit.Service
	logger *slog.Logger
}

// export handles GET /memorials/{id}/audit/export?format=json|csv.
func (h *auditHandlers) export(w http.ResponseWriter, r *http.Request) {
	memorialID, err := id.ParseMemorialID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	format := audit.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = audit.FormatJSON
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	payload, err := h.audits.Export(r.Context(), memorialID, format, filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	filename := "audit-" + memorialID.String() + "." + string(format)
	switch format {
	case audit.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

type eventResponse struct {
	ID         string           `json:"id"`
	Kind       string           `json:"kind"`
	Category   string           `json:"category"`
	ActorID    string           `json:"actorId,omitempty"`
	ActorToken string           `json:"actorToken,omitempty"`
	MemorialID string           `json:"memorialId,omitempty"`
	SessionID  string           `json:"sessionId,omitempty"`
	Client     audit.ClientInfo `json:"client"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// query handles GET /memorials/{id}/audit.
func (h *auditHandlers) query(w http.ResponseWriter, r *http.Request) {
	memorialID, err := id.ParseMemorialID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter.MemorialID = &memorialID

	events, err := h.audits.Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp := eventResponse{
			ID:         e.ID.String(),
			Kind:       string(e.Kind),
			Category:   string(e.Kind.Category()),
			ActorToken: e.ActorToken,
			Client:     e.Client,
			Metadata:   e.Metadata,
			CreatedAt:  e.CreatedAt,
		}
		if e.ActorID != nil {
			resp.ActorID = e.ActorID.String()
		}
		if e.MemorialID != nil {
			resp.MemorialID = e.MemorialID.String()
		}
		if e.SessionID != nil {
			resp.SessionID = e.SessionID.String()
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

// anonymize handles POST /privacy/anonymize: the authenticated actor's
// deletion-rights request against the audit trail.
func (h *auditHandlers) anonymize(w http.ResponseWriter, r *http.Request) {
	actorID := requestcontext.ActorID(r.Context())
	if actorID.IsNil() {
		writeError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	if err := h.audits.Anonymize(r.Context(), actorID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actorToken": h.audits.AnonymousToken(actorID),
	})
}

func filterFromQuery(r *http.Request) (audit.Filter, error) {
	var filter audit.Filter
	q := r.URL.Query()

	for _, raw := range q["kind"] {
		filter.Kinds = append(filter.Kinds, audit.EventKind(raw))
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "invalid from timestamp")
		}
		filter.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "invalid to timestamp")
		}
		filter.To = &t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "invalid limit")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "invalid offset")
		}
		filter.Offset = n
	}
	return filter, nil
}
