package audit

import (
	"context"

	id "everkeep/pkg/domain"
)

// Store is the storage port for audit events. Implementations must make
// Append durable before returning; the service treats a returned nil as "the
// compliance record exists".
type Store interface {
	Append(ctx context.Context, event Event) error

	// Query returns events matching the filter, newest first, with a
	// deterministic tie-break on ID (descending) when timestamps collide.
	Query(ctx context.Context, filter Filter) ([]Event, error)

	Count(ctx context.Context, filter Filter) (int, error)

	// RewriteActor replaces the actor reference on all events for the
	// given actor with the pseudonymous token, returning the number of
	// events rewritten. Rows are never deleted.
	RewriteActor(ctx context.Context, actorID id.ActorID, token string) (int, error)
}
