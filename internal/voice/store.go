package voice

import (
	"context"

	id "everkeep/pkg/domain"
)

// Store persists capability profiles and their samples.
//
// Implementations return sentinel.ErrNotFound when no profile matches and
// sentinel.ErrConflict when an insert collides with an existing profile for
// the same memorial.
type Store interface {
	Insert(ctx context.Context, profile *Profile) error
	// Update replaces the stored profile, samples included.
	Update(ctx context.Context, profile *Profile) error
	FindByMemorial(ctx context.Context, memorialID id.MemorialID) (*Profile, error)
	FindByID(ctx context.Context, profileID id.ProfileID) (*Profile, error)
}
