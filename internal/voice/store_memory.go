package voice

import (
	"context"
	"sync"

	id "everkeep/pkg/domain"
	"everkeep/pkg/platform/sentinel"
)

// InMemoryStore keeps profiles in process memory for tests and local
// development.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[id.ProfileID]*Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[id.ProfileID]*Profile)}
}

func (s *InMemoryStore) Insert(_ context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.MemorialID == profile.MemorialID {
			return sentinel.ErrConflict
		}
	}
	s.profiles[profile.ID] = copyProfile(profile)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[profile.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.profiles[profile.ID] = copyProfile(profile)
	return nil
}

func (s *InMemoryStore) FindByMemorial(_ context.Context, memorialID id.MemorialID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.MemorialID == memorialID {
			return copyProfile(p), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByID(_ context.Context, profileID id.ProfileID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyProfile(p), nil
}

func copyProfile(p *Profile) *Profile {
	cp := *p
	cp.Samples = make([]Sample, len(p.Samples))
	copy(cp.Samples, p.Samples)
	return &cp
}
