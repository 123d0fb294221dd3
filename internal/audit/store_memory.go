package audit

import (
	"context"
	"sort"
	"strings"
	"sync"

	id "everkeep/pkg/domain"
)

// InMemoryStore keeps events in process memory. Used by tests and local
// development; the ordering contract matches the Postgres store.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Deep-copy metadata so later caller mutations cannot reach the stored
	// record.
	if event.Metadata != nil {
		md := make(map[string]any, len(event.Metadata))
		for k, v := range event.Metadata {
			md[k] = v
		}
		event.Metadata = md
	}
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) Query(_ context.Context, filter Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Event
	for _, e := range s.events {
		if matches(e, filter) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return strings.Compare(matched[i].ID.String(), matched[j].ID.String()) > 0
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return append([]Event{}, matched...), nil
}

func (s *InMemoryStore) Count(_ context.Context, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.events {
		if matches(e, filter) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) RewriteActor(_ context.Context, actorID id.ActorID, token string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.events {
		if s.events[i].ActorID != nil && *s.events[i].ActorID == actorID {
			s.events[i].ActorID = nil
			s.events[i].ActorToken = token
			n++
		}
	}
	return n, nil
}

// Len reports the total number of stored events. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func matches(e Event, f Filter) bool {
	if f.ActorID != nil {
		if e.ActorID == nil || *e.ActorID != *f.ActorID {
			return false
		}
	}
	if f.MemorialID != nil {
		if e.MemorialID == nil || *e.MemorialID != *f.MemorialID {
			return false
		}
	}
	if f.SessionID != nil {
		if e.SessionID == nil || *e.SessionID != *f.SessionID {
			return false
		}
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if e.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
