package store

import (
	"context"
	"sort"
	"sync"

	"VoiceEconomy/internal/model"
)

// MemoryStore keeps state in process memory. Used when no data directory is
// configured and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	members     map[string]*model.MemberActivityState
	longTerm    map[string]*model.MemberLongTermState
	controllers map[string]model.ActivityController
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members:     make(map[string]*model.MemberActivityState),
		longTerm:    make(map[string]*model.MemberLongTermState),
		controllers: make(map[string]model.ActivityController),
	}
}

func (s *MemoryStore) LoadMember(_ context.Context, memberID string) (*model.MemberActivityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) SaveMember(_ context.Context, state *model.MemberActivityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[state.MemberID] = state.Clone()
	return nil
}

func (s *MemoryStore) ListMembers(_ context.Context) ([]*model.MemberActivityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.MemberActivityState, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (s *MemoryStore) LoadLongTerm(_ context.Context, memberID string) (*model.MemberLongTermState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lt, ok := s.longTerm[memberID]
	if !ok {
		return nil, ErrNotFound
	}
	return lt.Clone(), nil
}

func (s *MemoryStore) SaveLongTerm(_ context.Context, state *model.MemberLongTermState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.longTerm[state.MemberID] = state.Clone()
	return nil
}

func (s *MemoryStore) LoadController(_ context.Context, id string) (*model.ActivityController, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controllers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Holidays = append([]string(nil), c.Holidays...)
	return &c, nil
}

func (s *MemoryStore) SaveController(_ context.Context, ctrl *model.ActivityController) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *ctrl
	c.Holidays = append([]string(nil), ctrl.Holidays...)
	s.controllers[ctrl.ID] = c
	return nil
}

func (s *MemoryStore) Close() error { return nil }
