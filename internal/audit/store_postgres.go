package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "everkeep/pkg/domain"
	txcontext "everkeep/pkg/platform/tx"
)

// PostgresStore persists audit events in the audit_events table.
//
// Schema:
//
//	CREATE TABLE audit_events (
//	    id          UUID PRIMARY KEY,
//	    event_kind  TEXT NOT NULL,
//	    actor_id    UUID,
//	    actor_token TEXT,
//	    memorial_id UUID,
//	    session_id  UUID,
//	    ip_address  TEXT NOT NULL DEFAULT '',
//	    user_agent  TEXT NOT NULL DEFAULT '',
//	    device      TEXT NOT NULL DEFAULT '',
//	    metadata    JSONB,
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX audit_events_actor_idx ON audit_events (actor_id, created_at DESC);
//	CREATE INDEX audit_events_memorial_idx ON audit_events (memorial_id, created_at DESC);
//
// There is deliberately no UPDATE path other than RewriteActor and no DELETE
// path at all.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			id, event_kind, actor_id, actor_token, memorial_id, session_id,
			ip_address, user_agent, device, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		string(event.Kind),
		uuidOrNil(actorUUID(event.ActorID)),
		nullString(event.ActorToken),
		uuidOrNil(memorialUUID(event.MemorialID)),
		uuidOrNil(sessionUUID(event.SessionID)),
		event.Client.IPAddress,
		event.Client.UserAgent,
		event.Client.Device,
		nullBytes(metadata),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, filter Filter) ([]Event, error) {
	where, args := buildWhere(filter)
	query := `
		SELECT id, event_kind, actor_id, actor_token, memorial_id, session_id,
		       ip_address, user_agent, device, metadata, created_at
		FROM audit_events
	` + where + `
		ORDER BY created_at DESC, id DESC
	`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := buildWhere(filter)
	var n int
	err := s.execer(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) RewriteActor(ctx context.Context, actorID id.ActorID, token string) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE audit_events
		SET actor_id = NULL, actor_token = $1
		WHERE actor_id = $2
	`, token, uuid.UUID(actorID))
	if err != nil {
		return 0, fmt.Errorf("rewrite audit actor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rewrite audit actor rows: %w", err)
	}
	return int(n), nil
}

func buildWhere(filter Filter) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.ActorID != nil {
		add("actor_id = $%d", uuid.UUID(*filter.ActorID))
	}
	if filter.MemorialID != nil {
		add("memorial_id = $%d", uuid.UUID(*filter.MemorialID))
	}
	if filter.SessionID != nil {
		add("session_id = $%d", uuid.UUID(*filter.SessionID))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		add("event_kind = ANY($%d)", pq.Array(kinds))
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		event      Event
		kind       string
		actorID    uuid.NullUUID
		actorToken sql.NullString
		memorialID uuid.NullUUID
		sessionID  uuid.NullUUID
		metadata   []byte
		createdAt  time.Time
	)
	err := rows.Scan(&event.ID, &kind, &actorID, &actorToken, &memorialID, &sessionID,
		&event.Client.IPAddress, &event.Client.UserAgent, &event.Client.Device,
		&metadata, &createdAt)
	if err != nil {
		return Event{}, fmt.Errorf("scan audit event: %w", err)
	}
	event.Kind = EventKind(kind)
	event.CreatedAt = createdAt
	if actorID.Valid {
		a := id.ActorID(actorID.UUID)
		event.ActorID = &a
	}
	if actorToken.Valid {
		event.ActorToken = actorToken.String
	}
	if memorialID.Valid {
		m := id.MemorialID(memorialID.UUID)
		event.MemorialID = &m
	}
	if sessionID.Valid {
		sid := id.SessionID(sessionID.UUID)
		event.SessionID = &sid
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return Event{}, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
	}
	return event, nil
}

func actorUUID(a *id.ActorID) uuid.UUID {
	if a == nil {
		return uuid.Nil
	}
	return uuid.UUID(*a)
}

func memorialUUID(m *id.MemorialID) uuid.UUID {
	if m == nil {
		return uuid.Nil
	}
	return uuid.UUID(*m)
}

func sessionUUID(s *id.SessionID) uuid.UUID {
	if s == nil {
		return uuid.Nil
	}
	return uuid.UUID(*s)
}

func uuidOrNil(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
