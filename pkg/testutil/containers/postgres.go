//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer wraps a testcontainers Postgres instance with the
// subsystem schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// schema is the full subsystem schema. Integration tests always start from a
// freshly applied copy.
const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id          UUID PRIMARY KEY,
    event_kind  TEXT NOT NULL,
    actor_id    UUID,
    actor_token TEXT,
    memorial_id UUID,
    session_id  UUID,
    ip_address  TEXT NOT NULL DEFAULT '',
    user_agent  TEXT NOT NULL DEFAULT '',
    device      TEXT NOT NULL DEFAULT '',
    metadata    JSONB,
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_actor_idx ON audit_events (actor_id, created_at DESC);
CREATE INDEX IF NOT EXISTS audit_events_memorial_idx ON audit_events (memorial_id, created_at DESC);

CREATE TABLE IF NOT EXISTS consent_records (
    id                 UUID PRIMARY KEY,
    actor_id           UUID NOT NULL,
    memorial_id        UUID,
    capability         TEXT NOT NULL,
    text_version       TEXT NOT NULL,
    consent_text       TEXT NOT NULL,
    given_at           TIMESTAMPTZ NOT NULL,
    revoked_at         TIMESTAMPTZ,
    authorization_type TEXT,
    proof_type         TEXT,
    proof_ref          TEXT,
    relationship       TEXT NOT NULL DEFAULT '',
    verified_at        TIMESTAMPTZ,
    verified_by        UUID,
    verification_notes TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS consent_active_key_idx
    ON consent_records (actor_id, capability, COALESCE(memorial_id, '00000000-0000-0000-0000-000000000000'))
    WHERE revoked_at IS NULL;

CREATE TABLE IF NOT EXISTS voice_profiles (
    id                 UUID PRIMARY KEY,
    memorial_id        UUID NOT NULL UNIQUE,
    created_by         UUID NOT NULL,
    capability         TEXT NOT NULL,
    authorization_type TEXT NOT NULL,
    relationship       TEXT NOT NULL DEFAULT '',
    verification       TEXT NOT NULL,
    rejection_reason   TEXT NOT NULL DEFAULT '',
    generation_count   INT NOT NULL DEFAULT 0,
    last_generated_at  TIMESTAMPTZ,
    revoked_at         TIMESTAMPTZ,
    revoked_reason     TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS voice_samples (
    id               UUID PRIMARY KEY,
    profile_id       UUID NOT NULL REFERENCES voice_profiles (id) ON DELETE CASCADE,
    storage_ref      TEXT NOT NULL,
    duration_seconds INT NOT NULL,
    uploaded_at      TIMESTAMPTZ NOT NULL
);
`

// NewPostgresContainer starts a Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("everkeep_test"),
		tcpostgres.WithUsername("everkeep"),
		tcpostgres.WithPassword("everkeep"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn, DB: db}
}

// TruncateTables empties the named tables. Use between tests for isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	query := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", "))
	_, err := p.DB.ExecContext(ctx, query)
	return err
}
