// Package memstore provides an in-memory implementation of store.Store.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/store"
)

// Store holds broadcasts in memory. Suitable for dev/testing.
type Store struct {
	mu       sync.RWMutex
	messages map[string]*broadcast.Message // message ID -> message
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{messages: make(map[string]*broadcast.Message)}
}

// Insert stores a copy of msg. A message already present keeps its read state.
func (s *Store) Insert(_ context.Context, msg *broadcast.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; ok {
		return nil
	}
	s.messages[msg.ID] = msg.Clone()
	return nil
}

// Get retrieves a message by ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*broadcast.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, false, nil
	}
	return m.Clone(), true, nil
}

// List returns up to limit messages, newest first.
func (s *Store) List(_ context.Context, limit int) ([]*broadcast.Message, error) {
	s.mu.RLock()
	out := make([]*broadcast.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *broadcast.Message) int {
		if c := b.DeliveryTime.Compare(a.DeliveryTime); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit = store.ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkRead flags a message as read.
func (s *Store) MarkRead(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return false, nil
	}
	m.Read = true
	return true, nil
}

// Delete removes a message.
func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return false, nil
	}
	delete(s.messages, id)
	return true, nil
}

var _ store.Store = (*Store)(nil)
