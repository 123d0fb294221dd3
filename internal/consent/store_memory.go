package consent

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	id "everkeep/pkg/domain"
	"everkeep/pkg/platform/sentinel"
)

// InMemoryStore keeps consent records in process memory for tests and local
// development.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[uuid.UUID]*Record)}
}

func (s *InMemoryStore) Insert(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *record
	s.records[record.ID] = &cp
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; !exists {
		return sentinel.ErrNotFound
	}
	cp := *record
	s.records[record.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, recordID uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *InMemoryStore) FindLatest(_ context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *Record
	for _, r := range s.records {
		if !keyMatches(r, actorID, capability, memorialID) {
			continue
		}
		if latest == nil || r.GivenAt.After(latest.GivenAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryStore) FindActive(_ context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if keyMatches(r, actorID, capability, memorialID) && r.Active() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByActor(_ context.Context, actorID id.ActorID) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.records {
		if r.ActorID == actorID {
			cp := *r
			out = append(out, &cp)
		}
	}
	// Newest first, matching the Postgres ordering.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GivenAt.Equal(out[j].GivenAt) {
			return out[i].GivenAt.After(out[j].GivenAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func keyMatches(r *Record, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) bool {
	if r.ActorID != actorID || r.Capability != capability {
		return false
	}
	if memorialID == nil {
		return r.MemorialID == nil
	}
	return r.MemorialID != nil && *r.MemorialID == *memorialID
}
