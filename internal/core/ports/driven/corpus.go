package driven

import (
	"context"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// CorpusStore is the similarity-indexed document store for one corpus.
// It owns embedding, the vector index and the slot docstore, and persists
// them together under one directory.
//
// A CorpusStore is safe for concurrent readers but assumes a single writer.
type CorpusStore interface {
	// Add embeds and inserts documents. It does not persist.
	Add(ctx context.Context, docs []domain.Document) error

	// Truncate drops every document in slot n or above. It undoes Adds that
	// were not saved; n is a Len taken before them.
	Truncate(ctx context.Context, n int) error

	// Save persists index and docstore. Readers that reopen the directory
	// after Save returns see the saved state.
	Save(ctx context.Context) error

	// Query returns up to k documents scoring at least threshold against
	// text, by descending score. k <= 0 means all documents.
	Query(ctx context.Context, text string, k int, threshold float64) ([]domain.ScoredDocument, error)

	// ReplaceOrInsert overwrites the document whose metadata id is matchID,
	// in its existing slot, or appends doc when matchID is empty or unknown.
	// It always saves, and leaves the store unchanged when the save fails.
	// It reports whether a replacement happened.
	ReplaceOrInsert(ctx context.Context, doc domain.Document, matchID string) (bool, error)

	// Documents returns all stored documents ordered by slot.
	Documents(ctx context.Context) ([]domain.StoredDocument, error)

	// Len returns the number of stored documents.
	Len() int

	// Dir returns the directory the store persists to.
	Dir() string

	// Close releases resources without saving.
	Close() error
}
