package audit_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"everkeep/internal/audit"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

func exportFixture(t *testing.T) (*audit.Service, id.MemorialID, id.ActorID) {
	t.Helper()
	service := audit.New(audit.NewInMemoryStore(), "export-test-key")
	memorialID := id.NewMemorialID()
	actorID := id.NewActorID()

	ctx := context.Background()
	for _, kind := range []audit.EventKind{
		audit.KindConsentVoiceGranted,
		audit.KindVoiceSampleUploaded,
		audit.KindVoiceGenerated,
	} {
		_, err := service.Record(ctx, audit.Entry{
			Kind:       kind,
			ActorID:    &actorID,
			MemorialID: &memorialID,
			Client:     audit.ClientInfo{IPAddress: "203.0.113.9"},
			Metadata:   map[string]any{"source": "test"},
		})
		require.NoError(t, err)
	}
	// An event for another memorial must never leak into the export.
	otherMemorial := id.NewMemorialID()
	_, err := service.Record(ctx, audit.Entry{
		Kind:       audit.KindMemorialViewed,
		ActorID:    &actorID,
		MemorialID: &otherMemorial,
	})
	require.NoError(t, err)

	return service, memorialID, actorID
}

func TestExportCSVShape(t *testing.T) {
	service, memorialID, actorID := exportFixture(t)

	payload, err := service.Export(context.Background(), memorialID, audit.FormatCSV, audit.Filter{})
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4) // header + three events

	assert.Equal(t, []string{
		"id", "eventKind", "actorId", "subjectId", "sessionId",
		"clientAddress", "createdAt", "metadataJson",
	}, rows[0])

	for _, row := range rows[1:] {
		assert.Equal(t, actorID.String(), row[2])
		assert.Equal(t, memorialID.String(), row[3])
		assert.Equal(t, "203.0.113.9", row[5])
		assert.JSONEq(t, `{"source":"test"}`, row[7])
	}
}

func TestExportJSONShape(t *testing.T) {
	service, memorialID, _ := exportFixture(t)

	payload, err := service.Export(context.Background(), memorialID, audit.FormatJSON, audit.Filter{})
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	require.Len(t, out, 3)
	for _, e := range out {
		assert.Equal(t, memorialID.String(), e["subjectId"])
		assert.NotEmpty(t, e["eventKind"])
		assert.NotEmpty(t, e["category"])
		assert.NotEmpty(t, e["createdAt"])
	}
}

func TestExportScopesToMemorial(t *testing.T) {
	service, memorialID, _ := exportFixture(t)

	// A filter carrying another memorial is overridden by the path memorial.
	other := id.NewMemorialID()
	payload, err := service.Export(context.Background(), memorialID, audit.FormatJSON, audit.Filter{
		MemorialID: &other,
	})
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	for _, e := range out {
		assert.Equal(t, memorialID.String(), e["subjectId"])
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	service, memorialID, _ := exportFixture(t)
	_, err := service.Export(context.Background(), memorialID, "xml", audit.Filter{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestExportCapsRows(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping bulk export test in short mode")
	}
	service := audit.New(audit.NewInMemoryStore(), "export-test-key")
	memorialID := id.NewMemorialID()
	actorID := id.NewActorID()

	ctx := context.Background()
	for i := 0; i < 10050; i++ {
		_, err := service.Record(ctx, audit.Entry{
			Kind:       audit.KindMemorialViewed,
			ActorID:    &actorID,
			MemorialID: &memorialID,
		})
		require.NoError(t, err)
	}

	payload, err := service.Export(ctx, memorialID, audit.FormatCSV, audit.Filter{})
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 10001) // header + capped rows
}
