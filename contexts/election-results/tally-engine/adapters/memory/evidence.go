package memory

import (
	"context"
	"strings"
	"sync"
)

// EvidenceStore records uploaded evidence references.
type EvidenceStore struct {
	mu   sync.RWMutex
	refs map[string]struct{}
}

func NewEvidenceStore(refs ...string) *EvidenceStore {
	store := &EvidenceStore{refs: make(map[string]struct{}, len(refs))}
	for _, ref := range refs {
		store.Put(ref)
	}
	return store
}

func (s *EvidenceStore) Put(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[strings.TrimSpace(ref)] = struct{}{}
}

func (s *EvidenceStore) Exists(_ context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.refs[strings.TrimSpace(ref)]
	return ok, nil
}
