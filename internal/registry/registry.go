// Package registry tracks sessions that are currently running in this
// process. Terminal sessions are removed; their records live in the ledger.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/anotheregi/blastkeun/internal/model"
)

type SessionRegistry interface {
	Put(s model.BlastSession) error
	Get(key string) (model.BlastSession, bool)
	Remove(key string)
	ListByOwner(ownerID string) []model.BlastSession
	// Update applies fn to the stored session under the registry lock.
	Update(key string, fn func(*model.BlastSession)) (model.BlastSession, bool)
	ActiveIDs() []int64
}

// Memory is a mutex-guarded map. Listings are ordered by start time, then key.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*model.BlastSession
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*model.BlastSession)}
}

func (m *Memory) Put(s model.BlastSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.Key]; exists {
		return fmt.Errorf("session with key %s already registered", s.Key)
	}
	c := s.Clone()
	m.sessions[s.Key] = &c
	return nil
}

func (m *Memory) Get(key string) (model.BlastSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return model.BlastSession{}, false
	}
	return s.Clone(), true
}

func (m *Memory) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

func (m *Memory) Update(key string, fn func(*model.BlastSession)) (model.BlastSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return model.BlastSession{}, false
	}
	fn(s)
	return s.Clone(), true
}

func (m *Memory) ListByOwner(ownerID string) []model.BlastSession {
	m.mu.RLock()
	var out []model.BlastSession
	for _, s := range m.sessions {
		if s.OwnerID == ownerID {
			out = append(out, s.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (m *Memory) ActiveIDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.sessions))
	for _, s := range m.sessions {
		ids = append(ids, s.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
