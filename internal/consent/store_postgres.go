package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "everkeep/pkg/domain"
	"everkeep/pkg/platform/sentinel"
	txcontext "everkeep/pkg/platform/tx"
)

// PostgresStore persists consent records.
//
// Schema:
//
//	CREATE TABLE consent_records (
//	    id                 UUID PRIMARY KEY,
//	    actor_id           UUID NOT NULL,
//	    memorial_id        UUID,
//	    capability         TEXT NOT NULL,
//	    text_version       TEXT NOT NULL,
//	    consent_text       TEXT NOT NULL,
//	    given_at           TIMESTAMPTZ NOT NULL,
//	    revoked_at         TIMESTAMPTZ,
//	    authorization_type TEXT,
//	    proof_type         TEXT,
//	    proof_ref          TEXT,
//	    relationship       TEXT NOT NULL DEFAULT '',
//	    verified_at        TIMESTAMPTZ,
//	    verified_by        UUID,
//	    verification_notes TEXT NOT NULL DEFAULT ''
//	);
//	CREATE UNIQUE INDEX consent_active_key_idx
//	    ON consent_records (actor_id, capability, COALESCE(memorial_id, '00000000-0000-0000-0000-000000000000'))
//	    WHERE revoked_at IS NULL;
//
// The partial unique index backs the one-active-record invariant at the
// storage layer as well as in the service.
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

const recordColumns = `
	id, actor_id, memorial_id, capability, text_version, consent_text,
	given_at, revoked_at, authorization_type, proof_type, proof_ref,
	relationship, verified_at, verified_by, verification_notes
`

func (s *PostgresStore) Insert(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO consent_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, insertArgs(record)...)
	if err != nil {
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, record *Record) error {
	query := `
		UPDATE consent_records SET
			revoked_at = $2,
			verified_at = $3,
			verified_by = $4,
			verification_notes = $5
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID,
		nullTime(record.RevokedAt),
		nullTime(record.VerifiedAt),
		nullReviewer(record.VerifiedBy),
		record.VerificationNotes,
	)
	if err != nil {
		return fmt.Errorf("update consent record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent record rows: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, recordID uuid.UUID) (*Record, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		"SELECT"+recordColumns+"FROM consent_records WHERE id = $1", recordID)
	return scanRecord(row)
}

func (s *PostgresStore) FindLatest(ctx context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (*Record, error) {
	query := "SELECT" + recordColumns + `FROM consent_records
		WHERE actor_id = $1 AND capability = $2 AND ` + memorialClause(memorialID) + `
		ORDER BY given_at DESC LIMIT 1`
	row := s.execer(ctx).QueryRowContext(ctx, query, keyArgs(actorID, capability, memorialID)...)
	return scanRecord(row)
}

func (s *PostgresStore) FindActive(ctx context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (*Record, error) {
	query := "SELECT" + recordColumns + `FROM consent_records
		WHERE actor_id = $1 AND capability = $2 AND revoked_at IS NULL AND ` + memorialClause(memorialID)
	row := s.execer(ctx).QueryRowContext(ctx, query, keyArgs(actorID, capability, memorialID)...)
	return scanRecord(row)
}

func (s *PostgresStore) ListByActor(ctx context.Context, actorID id.ActorID) ([]*Record, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		"SELECT"+recordColumns+"FROM consent_records WHERE actor_id = $1 ORDER BY given_at DESC",
		uuid.UUID(actorID))
	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func memorialClause(memorialID *id.MemorialID) string {
	if memorialID == nil {
		return "memorial_id IS NULL"
	}
	return "memorial_id = $3"
}

func keyArgs(actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) []any {
	args := []any{uuid.UUID(actorID), string(capability)}
	if memorialID != nil {
		args = append(args, uuid.UUID(*memorialID))
	}
	return args
}

func insertArgs(r *Record) []any {
	var proofType, proofRef any
	if r.Proof != nil {
		proofType = string(r.Proof.Type)
		proofRef = r.Proof.StorageRef
	}
	var authType any
	if r.AuthorizationType != nil {
		authType = string(*r.AuthorizationType)
	}
	var memorial any
	if r.MemorialID != nil {
		memorial = uuid.UUID(*r.MemorialID)
	}
	return []any{
		r.ID, uuid.UUID(r.ActorID), memorial, string(r.Capability),
		r.TextVersion, r.ConsentText, r.GivenAt, nullTime(r.RevokedAt),
		authType, proofType, proofRef, r.Relationship,
		nullTime(r.VerifiedAt), nullReviewer(r.VerifiedBy), r.VerificationNotes,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (*Record, error) {
	record, err := scanFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return record, err
}

func scanRecordRows(rows *sql.Rows) (*Record, error) {
	return scanFrom(rows)
}

func scanFrom(scanner rowScanner) (*Record, error) {
	var (
		r          Record
		actorID    uuid.UUID
		memorialID uuid.NullUUID
		capability string
		revokedAt  sql.NullTime
		authType   sql.NullString
		proofType  sql.NullString
		proofRef   sql.NullString
		verifiedAt sql.NullTime
		verifiedBy uuid.NullUUID
	)
	err := scanner.Scan(&r.ID, &actorID, &memorialID, &capability,
		&r.TextVersion, &r.ConsentText, &r.GivenAt, &revokedAt,
		&authType, &proofType, &proofRef, &r.Relationship,
		&verifiedAt, &verifiedBy, &r.VerificationNotes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan consent record: %w", err)
	}
	r.ActorID = id.ActorID(actorID)
	r.Capability = id.CapabilityType(capability)
	if memorialID.Valid {
		m := id.MemorialID(memorialID.UUID)
		r.MemorialID = &m
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		r.RevokedAt = &t
	}
	if authType.Valid {
		a := id.AuthorizationType(authType.String)
		r.AuthorizationType = &a
	}
	if proofType.Valid {
		r.Proof = &ProofDocument{
			Type:       id.ProofDocumentType(proofType.String),
			StorageRef: proofRef.String,
		}
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		r.VerifiedAt = &t
	}
	if verifiedBy.Valid {
		rv := id.ReviewerID(verifiedBy.UUID)
		r.VerifiedBy = &rv
	}
	return &r, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullReviewer(r *id.ReviewerID) any {
	if r == nil {
		return nil
	}
	return uuid.UUID(*r)
}
