package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"time"

	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

// ExportFormat selects the export serialization.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// exportCap bounds export memory. Exports accept a higher row cap than
// interactive queries, not an unlimited one.
const exportCap = 10000

// csvColumns is the fixed column order of the CSV export. It is part of the
// external contract; do not reorder.
var csvColumns = []string{
	"id", "eventKind", "actorId", "subjectId", "sessionId",
	"clientAddress", "createdAt", "metadataJson",
}

// exportedEvent is the JSON export shape: nested, full fidelity, ISO-8601
// timestamps.
type exportedEvent struct {
	ID        string         `json:"id"`
	EventKind string         `json:"eventKind"`
	Category  string         `json:"category"`
	ActorID   string         `json:"actorId,omitempty"`
	SubjectID string         `json:"subjectId,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Client    ClientInfo     `json:"client"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

// Export serializes the audit trail for a memorial in the requested format,
// applying the same filtering as Query but with the export row cap.
func (s *Service) Export(ctx context.Context, memorialID id.MemorialID, format ExportFormat, filter Filter) ([]byte, error) {
	if memorialID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "memorial id is required")
	}
	filter.MemorialID = &memorialID
	filter.Limit = exportCap
	filter.Offset = 0

	events, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "audit export query failed")
	}
	if s.metrics != nil {
		s.metrics.ExportRows.Observe(float64(len(events)))
	}

	switch format {
	case FormatJSON:
		return exportJSON(events)
	case FormatCSV:
		return exportCSV(events)
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported export format: "+string(format))
	}
}

func exportJSON(events []Event) ([]byte, error) {
	out := make([]exportedEvent, 0, len(events))
	for _, e := range events {
		out = append(out, exportedEvent{
			ID:        e.ID.String(),
			EventKind: string(e.Kind),
			Category:  string(e.Kind.Category()),
			ActorID:   actorRef(e),
			SubjectID: optionalID(e.MemorialID),
			SessionID: optionalSession(e.SessionID),
			Client:    e.Client,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

func exportCSV(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "write csv header")
	}
	for _, e := range events {
		metadataJSON := ""
		if e.Metadata != nil {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal event metadata")
			}
			metadataJSON = string(b)
		}
		row := []string{
			e.ID.String(),
			string(e.Kind),
			actorRef(e),
			optionalID(e.MemorialID),
			optionalSession(e.SessionID),
			e.Client.IPAddress,
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
			metadataJSON,
		}
		if err := w.Write(row); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "flush csv")
	}
	return buf.Bytes(), nil
}

func actorRef(e Event) string {
	if e.ActorID != nil {
		return e.ActorID.String()
	}
	return e.ActorToken
}

func optionalID(m *id.MemorialID) string {
	if m == nil {
		return ""
	}
	return m.String()
}

func optionalSession(s *id.SessionID) string {
	if s == nil {
		return ""
	}
	return s.String()
}
