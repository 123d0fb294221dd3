package voice

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

// PostgresStore persists capability profiles.
//
// Schema:
//
//	CREATE TABLE voice_profiles (
//	    id                 UUID PRIMARY KEY,
//	    memorial_id        UUID NOT NULL UNIQUE,
//	    created_by         UUID NOT NULL,
//	    capability         TEXT NOT NULL,
//	    authorization_type TEXT NOT NULL,
//	    relationship       TEXT NOT NULL DEFAULT '',
//	    verification       TEXT NOT NULL,
//	    rejection_reason   TEXT NOT NULL DEFAULT '',
//	    generation_count   INT NOT NULL DEFAULT 0,
//	    last_generated_at  TIMESTAMPTZ,
//	    revoked_at         TIMESTAMPTZ,
//	    revoked_reason     TEXT NOT NULL DEFAULT '',
//	    created_at         TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE voice_samples (
//	    id               UUID PRIMARY KEY,
//	    profile_id       UUID NOT NULL REFERENCES voice_profiles (id) ON DELETE CASCADE,
//	    storage_ref      TEXT NOT NULL,
//	    duration_seconds INT NOT NULL,
//	    uploaded_at      TIMESTAMPTZ NOT NULL
//	);
//
// Update rewrites the sample set wholesale. Sample counts are capped at ten
// per profile, so the delete-and-reinsert round trip stays cheap and the
// store never has to diff.
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

const profileColumns = `
	id, memorial_id, created_by, capability, authorization_type, relationship,
	verification, rejection_reason, generation_count, last_generated_at,
	revoked_at, revoked_reason, created_at
`

func (s *PostgresStore) Insert(ctx context.Context, profile *Profile) error {
	query := `
		INSERT INTO voice_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, profileArgs(profile)...)
	if err != nil {
		return fmt.Errorf("insert voice profile: %w", err)
	}
	return s.writeSamples(ctx, profile)
}

func (s *PostgresStore) Update(ctx context.Context, profile *Profile) error {
	query := `
		UPDATE voice_profiles SET
			verification = $2,
			rejection_reason = $3,
			generation_count = $4,
			last_generated_at = $5,
			revoked_at = $6,
			revoked_reason = $7
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(profile.ID),
		string(profile.VerificationStatus),
		profile.RejectionReason,
		profile.GenerationCount,
		nullTime(profile.LastGeneratedAt),
		nullTime(profile.RevokedAt),
		profile.RevokedReason,
	)
	if err != nil {
		return fmt.Errorf("update voice profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update voice profile rows: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return s.writeSamples(ctx, profile)
}

func (s *PostgresStore) FindByMemorial(ctx context.Context, memorialID id.MemorialID) (*Profile, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		"SELECT"+profileColumns+"FROM voice_profiles WHERE memorial_id = $1",
		uuid.UUID(memorialID))
	return s.scanProfile(ctx, row)
}

func (s *PostgresStore) FindByID(ctx context.Context, profileID id.ProfileID) (*Profile, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		"SELECT"+profileColumns+"FROM voice_profiles WHERE id = $1",
		uuid.UUID(profileID))
	return s.scanProfile(ctx, row)
}

func (s *PostgresStore) writeSamples(ctx context.Context, profile *Profile) error {
	exec := s.execer(ctx)
	if _, err := exec.ExecContext(ctx,
		"DELETE FROM voice_samples WHERE profile_id = $1", uuid.UUID(profile.ID)); err != nil {
		return fmt.Errorf("clear voice samples: %w", err)
	}
	for _, sample := range profile.Samples {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO voice_samples (id, profile_id, storage_ref, duration_seconds, uploaded_at)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.UUID(sample.ID), uuid.UUID(profile.ID), sample.StorageRef,
			sample.DurationSeconds, sample.UploadedAt)
		if err != nil {
			return fmt.Errorf("insert voice sample: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) loadSamples(ctx context.Context, profileID id.ProfileID) ([]Sample, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, storage_ref, duration_seconds, uploaded_at
		FROM voice_samples WHERE profile_id = $1 ORDER BY uploaded_at
	`, uuid.UUID(profileID))
	if err != nil {
		return nil, fmt.Errorf("load voice samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var (
			sample   Sample
			sampleID uuid.UUID
		)
		if err := rows.Scan(&sampleID, &sample.StorageRef, &sample.DurationSeconds, &sample.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan voice sample: %w", err)
		}
		sample.ID = id.SampleID(sampleID)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func (s *PostgresStore) scanProfile(ctx context.Context, row *sql.Row) (*Profile, error) {
	var (
		p               Profile
		profileID       uuid.UUID
		memorialID      uuid.UUID
		createdBy       uuid.UUID
		capability      string
		authType        string
		verification    string
		lastGeneratedAt sql.NullTime
		revokedAt       sql.NullTime
	)
	err := row.Scan(&profileID, &memorialID, &createdBy, &capability, &authType,
		&p.AuthorizerRelationship, &verification, &p.RejectionReason,
		&p.GenerationCount, &lastGeneratedAt, &revokedAt, &p.RevokedReason,
		&p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan voice profile: %w", err)
	}
	p.ID = id.ProfileID(profileID)
	p.MemorialID = id.MemorialID(memorialID)
	p.CreatedBy = id.ActorID(createdBy)
	p.Capability = id.CapabilityType(capability)
	p.AuthorizationType = id.AuthorizationType(authType)
	p.VerificationStatus = id.VerificationStatus(verification)
	if lastGeneratedAt.Valid {
		t := lastGeneratedAt.Time
		p.LastGeneratedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		p.RevokedAt = &t
	}
	p.Samples, err = s.loadSamples(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.recomputeTotal()
	return &p, nil
}

func profileArgs(p *Profile) []any {
	return []any{
		uuid.UUID(p.ID), uuid.UUID(p.MemorialID), uuid.UUID(p.CreatedBy),
		string(p.Capability), string(p.AuthorizationType), p.AuthorizerRelationship,
		string(p.VerificationStatus), p.RejectionReason, p.GenerationCount,
		nullTime(p.LastGeneratedAt), nullTime(p.RevokedAt), p.RevokedReason,
		p.CreatedAt,
	}
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
