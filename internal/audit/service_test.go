package audit_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"everkeep/internal/audit"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

// failingStore wraps the in-memory store and fails writes on demand.
type failingStore struct {
	*audit.InMemoryStore
	failAppend bool
}

func (s *failingStore) Append(ctx context.Context, event audit.Event) error {
	if s.failAppend {
		return errors.New("disk full")
	}
	return s.InMemoryStore.Append(ctx, event)
}

type ServiceSuite struct {
	suite.Suite
	store   *failingStore
	service *audit.Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = &failingStore{InMemoryStore: audit.NewInMemoryStore()}
	s.service = audit.New(s.store, "test-anonymization-key")
	s.ctx = context.Background()
}

func (s *ServiceSuite) TestRecordAssignsIdentityAndTimestamp() {
	actorID := id.NewActorID()
	event, err := s.service.Record(s.ctx, audit.Entry{
		Kind:    audit.KindLogin,
		ActorID: &actorID,
	})
	s.Require().NoError(err)
	s.NotEqual("00000000-0000-0000-0000-000000000000", event.ID.String())
	s.WithinDuration(time.Now().UTC(), event.CreatedAt, time.Minute)
	s.Equal(1, s.store.Len())
}

func (s *ServiceSuite) TestRecordRejectsEmptyKind() {
	_, err := s.service.Record(s.ctx, audit.Entry{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestRecordFailsClosedOnStorageError() {
	s.store.failAppend = true
	_, err := s.service.Record(s.ctx, audit.Entry{Kind: audit.KindVoiceGenerated})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStorage))
}

func (s *ServiceSuite) TestQueryNewestFirstWithIDTieBreak() {
	actorID := id.NewActorID()
	for i := 0; i < 5; i++ {
		_, err := s.service.Record(s.ctx, audit.Entry{
			Kind:    audit.KindMemorialViewed,
			ActorID: &actorID,
		})
		s.Require().NoError(err)
	}

	events, err := s.service.Query(s.ctx, audit.Filter{ActorID: &actorID})
	s.Require().NoError(err)
	s.Require().Len(events, 5)
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if prev.CreatedAt.Equal(cur.CreatedAt) {
			s.Greater(prev.ID.String(), cur.ID.String())
		} else {
			s.True(prev.CreatedAt.After(cur.CreatedAt))
		}
	}
}

func (s *ServiceSuite) TestQueryClampsLimit() {
	actorID := id.NewActorID()
	for i := 0; i < 60; i++ {
		_, err := s.service.Record(s.ctx, audit.Entry{
			Kind:    audit.KindMemorialViewed,
			ActorID: &actorID,
		})
		s.Require().NoError(err)
	}

	// Zero limit falls back to the default page size.
	events, err := s.service.Query(s.ctx, audit.Filter{ActorID: &actorID})
	s.Require().NoError(err)
	s.Len(events, 50)
}

func (s *ServiceSuite) TestAnonymizeRewritesWithoutDeleting() {
	actorID := id.NewActorID()
	other := id.NewActorID()
	for i := 0; i < 3; i++ {
		_, err := s.service.Record(s.ctx, audit.Entry{Kind: audit.KindLogin, ActorID: &actorID})
		s.Require().NoError(err)
	}
	_, err := s.service.Record(s.ctx, audit.Entry{Kind: audit.KindLogin, ActorID: &other})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Anonymize(s.ctx, actorID))

	// Nothing deleted: 4 original events plus the deletion event itself.
	s.Equal(5, s.store.Len())

	token := s.service.AnonymousToken(actorID)
	events, err := s.service.Query(s.ctx, audit.Filter{Limit: 100})
	s.Require().NoError(err)
	for _, e := range events {
		if e.ActorID != nil {
			s.NotEqual(actorID, *e.ActorID)
			continue
		}
		if e.Kind == audit.KindDataDeletionRequested {
			s.Equal(token, e.Metadata["actor_token"])
			continue
		}
		s.Equal(token, e.ActorToken)
	}
}

func (s *ServiceSuite) TestAnonymizeIsIdempotent() {
	actorID := id.NewActorID()
	_, err := s.service.Record(s.ctx, audit.Entry{Kind: audit.KindLogin, ActorID: &actorID})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Anonymize(s.ctx, actorID))
	s.Require().NoError(s.service.Anonymize(s.ctx, actorID))

	events, err := s.service.Query(s.ctx, audit.Filter{Kinds: []audit.EventKind{audit.KindLogin}})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(s.service.AnonymousToken(actorID), events[0].ActorToken)
}

func (s *ServiceSuite) TestAnonymousTokenIsDeterministicAndKeyed() {
	actorID := id.NewActorID()
	token := s.service.AnonymousToken(actorID)

	s.Equal(token, s.service.AnonymousToken(actorID))
	s.True(strings.HasPrefix(token, "anon-"))
	s.Len(token, len("anon-")+32)

	otherKey := audit.New(audit.NewInMemoryStore(), "different-key")
	s.NotEqual(token, otherKey.AnonymousToken(actorID))
	s.NotEqual(token, s.service.AnonymousToken(id.NewActorID()))
}

func TestEventKindCategories(t *testing.T) {
	cases := map[audit.EventKind]audit.EventCategory{
		audit.KindConsentVoiceGranted:    audit.CategoryCompliance,
		audit.KindDataDeletionRequested:  audit.CategoryCompliance,
		audit.KindGateDenied:             audit.CategorySecurity,
		audit.KindLogin:                  audit.CategorySecurity,
		audit.KindGateAllowed:            audit.CategoryOperations,
		audit.KindMemorialViewed:         audit.CategoryOperations,
		audit.EventKind("unknown_thing"): audit.CategoryOperations,
	}
	for kind, want := range cases {
		if got := kind.Category(); got != want {
			t.Errorf("Category(%s) = %s, want %s", kind, got, want)
		}
	}
}
