package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory slot-to-document map. A corpus store keeps
// its live state here and snapshots it on save.
type DocumentStore struct {
	mu    sync.RWMutex
	slots map[int64]domain.Document
	ids   map[string]int64
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		slots: make(map[int64]domain.Document),
		ids:   make(map[string]int64),
	}
}

// Put stores or overwrites the document in a slot.
func (s *DocumentStore) Put(_ context.Context, slot int64, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.slots[slot]; ok {
		delete(s.ids, prev.ID())
	}
	s.slots[slot] = doc.Clone()
	if id := doc.ID(); id != "" {
		s.ids[id] = slot
	}
	return nil
}

// DeleteFrom removes every document in slot n or above.
func (s *DocumentStore) DeleteFrom(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slot, doc := range s.slots {
		if slot >= n {
			delete(s.ids, doc.ID())
			delete(s.slots, slot)
		}
	}
}

// Get retrieves the document in a slot.
func (s *DocumentStore) Get(_ context.Context, slot int64) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.slots[slot]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	return doc.Clone(), nil
}

// FindSlot returns the slot holding the document with the given metadata id.
func (s *DocumentStore) FindSlot(_ context.Context, id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.ids[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return slot, nil
}

// List returns all documents ordered by slot.
func (s *DocumentStore) List(_ context.Context) ([]domain.StoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StoredDocument, 0, len(s.slots))
	for slot, doc := range s.slots {
		result = append(result, domain.StoredDocument{Slot: slot, Document: doc.Clone()})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Slot < result[j].Slot
	})
	return result, nil
}

// Count returns the number of stored documents.
func (s *DocumentStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots), nil
}
