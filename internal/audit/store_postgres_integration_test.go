//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"everkeep/internal/audit"
	id "everkeep/pkg/domain"
	"everkeep/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *audit.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = audit.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func (s *PostgresStoreSuite) newEvent(kind audit.EventKind, actorID id.ActorID, memorialID id.MemorialID, at time.Time) audit.Event {
	return audit.Event{
		ID:         uuid.New(),
		Kind:       kind,
		ActorID:    &actorID,
		MemorialID: &memorialID,
		Client:     audit.ClientInfo{IPAddress: "198.51.100.7", UserAgent: "test", Device: "Test / Linux"},
		Metadata:   map[string]any{"source": "integration"},
		CreatedAt:  at,
	}
}

func (s *PostgresStoreSuite) TestAppendAndQueryRoundTrip() {
	ctx := context.Background()
	actorID := id.NewActorID()
	memorialID := id.NewMemorialID()
	base := time.Now().UTC().Truncate(time.Microsecond)

	event := s.newEvent(audit.KindConsentVoiceGranted, actorID, memorialID, base)
	s.Require().NoError(s.store.Append(ctx, event))

	events, err := s.store.Query(ctx, audit.Filter{ActorID: &actorID, Limit: 10})
	s.Require().NoError(err)
	s.Require().Len(events, 1)

	got := events[0]
	s.Equal(event.ID, got.ID)
	s.Equal(event.Kind, got.Kind)
	s.Equal(actorID, *got.ActorID)
	s.Equal(memorialID, *got.MemorialID)
	s.Equal(event.Client, got.Client)
	s.Equal("integration", got.Metadata["source"])
	s.True(got.CreatedAt.Equal(base))
}

func (s *PostgresStoreSuite) TestQueryOrderingAndFilters() {
	ctx := context.Background()
	actorID := id.NewActorID()
	memorialID := id.NewMemorialID()
	base := time.Now().UTC().Truncate(time.Microsecond)

	kinds := []audit.EventKind{audit.KindLogin, audit.KindVoiceGenerated, audit.KindGateDenied}
	for i, kind := range kinds {
		event := s.newEvent(kind, actorID, memorialID, base.Add(time.Duration(i)*time.Second))
		s.Require().NoError(s.store.Append(ctx, event))
	}

	events, err := s.store.Query(ctx, audit.Filter{MemorialID: &memorialID, Limit: 10})
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(audit.KindGateDenied, events[0].Kind)
	s.Equal(audit.KindLogin, events[2].Kind)

	filtered, err := s.store.Query(ctx, audit.Filter{
		Kinds: []audit.EventKind{audit.KindLogin, audit.KindGateDenied},
		Limit: 10,
	})
	s.Require().NoError(err)
	s.Len(filtered, 2)

	n, err := s.store.Count(ctx, audit.Filter{ActorID: &actorID})
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *PostgresStoreSuite) TestRewriteActor() {
	ctx := context.Background()
	actorID := id.NewActorID()
	other := id.NewActorID()
	memorialID := id.NewMemorialID()
	now := time.Now().UTC()

	s.Require().NoError(s.store.Append(ctx, s.newEvent(audit.KindLogin, actorID, memorialID, now)))
	s.Require().NoError(s.store.Append(ctx, s.newEvent(audit.KindLogin, actorID, memorialID, now.Add(time.Second))))
	s.Require().NoError(s.store.Append(ctx, s.newEvent(audit.KindLogin, other, memorialID, now)))

	rewritten, err := s.store.RewriteActor(ctx, actorID, "anon-0123456789abcdef0123456789abcdef")
	s.Require().NoError(err)
	s.Equal(2, rewritten)

	events, err := s.store.Query(ctx, audit.Filter{MemorialID: &memorialID, Limit: 10})
	s.Require().NoError(err)
	anonymized := 0
	for _, e := range events {
		if e.ActorID == nil {
			s.Equal("anon-0123456789abcdef0123456789abcdef", e.ActorToken)
			anonymized++
		}
	}
	s.Equal(2, anonymized)
}
