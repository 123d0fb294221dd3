package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"everkeep/internal/audit"
	id "everkeep/pkg/domain"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *audit.InMemoryStore
	ctx   context.Context

	actorID    id.ActorID
	memorialID id.MemorialID
	sessionID  id.SessionID
	base       time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = audit.NewInMemoryStore()
	s.ctx = context.Background()
	s.actorID = id.NewActorID()
	s.memorialID = id.NewMemorialID()
	s.sessionID = id.NewSessionID()
	s.base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	kinds := []audit.EventKind{
		audit.KindLogin,
		audit.KindConsentVoiceGranted,
		audit.KindVoiceGenerated,
	}
	for i, kind := range kinds {
		event := audit.Event{
			ID:         uuid.New(),
			Kind:       kind,
			ActorID:    &s.actorID,
			MemorialID: &s.memorialID,
			SessionID:  &s.sessionID,
			CreatedAt:  s.base.Add(time.Duration(i) * time.Minute),
		}
		s.Require().NoError(s.store.Append(s.ctx, event))
	}
}

func (s *InMemoryStoreSuite) TestFilterByKind() {
	events, err := s.store.Query(s.ctx, audit.Filter{
		Kinds: []audit.EventKind{audit.KindLogin, audit.KindVoiceGenerated},
	})
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *InMemoryStoreSuite) TestFilterBySession() {
	otherSession := id.NewSessionID()
	events, err := s.store.Query(s.ctx, audit.Filter{SessionID: &otherSession})
	s.Require().NoError(err)
	s.Empty(events)

	events, err = s.store.Query(s.ctx, audit.Filter{SessionID: &s.sessionID})
	s.Require().NoError(err)
	s.Len(events, 3)
}

func (s *InMemoryStoreSuite) TestFilterByTimeWindow() {
	from := s.base.Add(30 * time.Second)
	to := s.base.Add(90 * time.Second)
	events, err := s.store.Query(s.ctx, audit.Filter{From: &from, To: &to})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.KindConsentVoiceGranted, events[0].Kind)
}

func (s *InMemoryStoreSuite) TestOffsetPastEnd() {
	events, err := s.store.Query(s.ctx, audit.Filter{Offset: 10})
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *InMemoryStoreSuite) TestCount() {
	n, err := s.store.Count(s.ctx, audit.Filter{ActorID: &s.actorID})
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *InMemoryStoreSuite) TestRewriteActorLeavesOthersAlone() {
	other := id.NewActorID()
	s.Require().NoError(s.store.Append(s.ctx, audit.Event{
		ID:        uuid.New(),
		Kind:      audit.KindLogin,
		ActorID:   &other,
		CreatedAt: s.base,
	}))

	n, err := s.store.RewriteActor(s.ctx, s.actorID, "anon-abc")
	s.Require().NoError(err)
	s.Equal(3, n)

	events, err := s.store.Query(s.ctx, audit.Filter{ActorID: &other})
	s.Require().NoError(err)
	s.Len(events, 1)
}
