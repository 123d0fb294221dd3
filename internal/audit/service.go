package audit

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"everkeep/internal/platform/metrics"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// Mirror fans an already-persisted event out to a secondary sink
// (best-effort, never on the critical path).
type Mirror interface {
	Publish(ctx context.Context, event Event)
}

// Service is the audit logger: the append-only system of record every other
// component writes to. Writes are durable before Record returns; a failed
// write fails the triggering action.
type Service struct {
	store   Store
	mirror  Mirror
	logger  *slog.Logger
	metrics *metrics.Metrics
	anonKey []byte
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMirror attaches a secondary sink that receives each event after the
// durable write succeeds.
func WithMirror(m Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// New creates the audit service. anonymizationKey keys the pseudonymous actor
// tokens; it must be stable per deployment or repeated anonymization stops
// being idempotent.
func New(store Store, anonymizationKey string, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  slog.Default(),
		anonKey: []byte(anonymizationKey),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends a single audit event. The write is durable before Record
// returns; on storage failure the caller receives CodeStorage and must fail
// its own operation (an unaudited sensitive action is worse than a failed
// request).
func (s *Service) Record(ctx context.Context, entry Entry) (Event, error) {
	if entry.Kind == "" {
		return Event{}, dErrors.New(dErrors.CodeValidation, "audit event kind is required")
	}

	event := Event{
		ID:         uuid.New(),
		Kind:       entry.Kind,
		ActorID:    entry.ActorID,
		MemorialID: entry.MemorialID,
		SessionID:  entry.SessionID,
		Client:     entry.Client,
		Metadata:   entry.Metadata,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.store.Append(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.AuditWriteFailures.Inc()
		}
		s.logger.ErrorContext(ctx, "audit write failed",
			"kind", event.Kind,
			"error", err,
		)
		return Event{}, dErrors.Wrap(err, dErrors.CodeStorage, "audit event could not be persisted")
	}

	if s.metrics != nil {
		s.metrics.AuditEvents.WithLabelValues(string(event.Kind.Category())).Inc()
	}
	if s.mirror != nil {
		s.mirror.Publish(ctx, event)
	}
	return event, nil
}

// Query returns events matching the filter, newest first, deterministic
// tie-break by ID when timestamps collide.
func (s *Service) Query(ctx context.Context, filter Filter) ([]Event, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultQueryLimit
	}
	if filter.Limit > maxQueryLimit {
		filter.Limit = maxQueryLimit
	}
	events, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "audit query failed")
	}
	return events, nil
}

// Anonymize rewrites all events for the actor to a stable pseudonymous
// token. The same actor always maps to the same token, so pattern analysis
// survives anonymization. Idempotent; never deletes rows; itself audited as
// a data-deletion event.
func (s *Service) Anonymize(ctx context.Context, actorID id.ActorID) error {
	if actorID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "actor id is required")
	}
	token := s.AnonymousToken(actorID)

	rewritten, err := s.store.RewriteActor(ctx, actorID, token)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "audit anonymization failed")
	}

	// The deletion event itself carries only the token: writing the raw
	// actor ID here would undo the rewrite it records.
	_, err = s.Record(ctx, Entry{
		Kind: KindDataDeletionRequested,
		Metadata: map[string]any{
			"actor_token":       token,
			"events_anonymized": rewritten,
		},
	})
	return err
}

// AnonymousToken derives the deterministic pseudonymous token for an actor
// using a keyed BLAKE2b hash; without the key the mapping is not reversible
// or reproducible.
func (s *Service) AnonymousToken(actorID id.ActorID) string {
	h, err := blake2b.New256(s.anonKey)
	if err != nil {
		// Only reachable with a key longer than 64 bytes; fall back to
		// unkeyed hashing of key+id rather than failing deletion rights.
		h, _ = blake2b.New256(nil)
		h.Write(s.anonKey)
	}
	h.Write([]byte(actorID.String()))
	return "anon-" + hex.EncodeToString(h.Sum(nil))[:32]
}
