package driven

import (
	"context"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// DocumentStore maps store slots to documents for one corpus.
// Implementations: in-memory (live state) and SQLite (persisted snapshot).
type DocumentStore interface {
	// Put stores or overwrites the document in a slot.
	Put(ctx context.Context, slot int64, doc domain.Document) error

	// Get retrieves the document in a slot.
	// Returns domain.ErrNotFound if the slot is empty.
	Get(ctx context.Context, slot int64) (domain.Document, error)

	// FindSlot returns the slot holding the document with the given metadata id.
	// Returns domain.ErrNotFound if no document has that id.
	FindSlot(ctx context.Context, id string) (int64, error)

	// List returns all documents ordered by slot.
	List(ctx context.Context) ([]domain.StoredDocument, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// SnapshotStore is a DocumentStore that can replace its whole contents
// atomically. A corpus save uses it to commit the docstore in one step.
type SnapshotStore interface {
	DocumentStore

	// ReplaceAll swaps the stored contents for docs in a single transaction.
	ReplaceAll(ctx context.Context, docs []domain.StoredDocument) error
}
