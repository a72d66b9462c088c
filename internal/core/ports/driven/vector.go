package driven

import "context"

// VectorIndex is an exact nearest-neighbour index over fixed-dimension
// vectors addressed by store slot.
type VectorIndex interface {
	// Add appends a vector and returns the slot it was stored in.
	Add(ctx context.Context, embedding []float32) (int64, error)

	// Set overwrites the vector stored in an existing slot.
	Set(ctx context.Context, slot int64, embedding []float32) error

	// Search finds the k nearest vectors to the query. k <= 0 means all.
	// Hits are ordered by ascending distance.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Len returns the number of stored vectors.
	Len() int

	// Dimensions returns the fixed vector size.
	Dimensions() int

	// Close releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// Slot is the matched store slot.
	Slot int64

	// Distance is the squared L2 distance to the query.
	Distance float32
}
