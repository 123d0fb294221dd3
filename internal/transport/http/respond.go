package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "everkeep/pkg/domain-errors"
	"everkeep/pkg/requestcontext"
)

// errorEnvelope is the wire shape of every error response.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps a domain error to its HTTP status and envelope. Unknown
// errors become opaque 500s; internal detail stays in the log.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	message := "internal error"
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"code", string(code),
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		message = "internal error"
	}
	writeJSON(w, status, errorEnvelope{Error: string(code), Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, logger, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}
