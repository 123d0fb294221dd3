package consent

import (
	"context"

	"github.com/google/uuid"

	id "everkeep/pkg/domain"
)

// Store is the storage port for consent records.
//
// Invariant enforced by implementations: at most one active (non-revoked)
// record per (actor, memorial, capability) key. The service maintains this
// by revoking the prior active record before inserting a successor, under
// the per-key lock.
type Store interface {
	Insert(ctx context.Context, record *Record) error

	// Update persists mutations to an existing record (revocation,
	// verification). Returns sentinel.ErrNotFound for unknown IDs.
	Update(ctx context.Context, record *Record) error

	FindByID(ctx context.Context, recordID uuid.UUID) (*Record, error)

	// FindLatest returns the most recently given record for the key,
	// revoked or not, or sentinel.ErrNotFound. The latest record decides
	// whether a check reports "revoked" or "no record".
	FindLatest(ctx context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (*Record, error)

	// FindActive returns the single unrevoked record for the key, or
	// sentinel.ErrNotFound.
	FindActive(ctx context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (*Record, error)

	ListByActor(ctx context.Context, actorID id.ActorID) ([]*Record, error)
}
