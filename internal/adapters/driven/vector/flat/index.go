// Package flat provides an exact (brute-force) L2 vector index.
//
// Vectors are stored contiguously and addressed by slot, the position at
// which they were added. Search scans every vector, which is the right
// trade for corpora of tens to thousands of documents where recall matters
// more than latency.
//
// # Persistence
//
// WriteTo and Read use a little-endian binary layout:
//
//	magic   [4]byte  "CRFX"
//	version uint16
//	dim     uint32
//	count   uint64
//	data    count*dim float32
package flat

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

const formatVersion uint16 = 1

var magic = [4]byte{'C', 'R', 'F', 'X'}

// ErrInvalidFormat indicates serialized index data could not be decoded.
var ErrInvalidFormat = errors.New("invalid index format")

// Index is a flat L2 index. It is safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	dim    int
	data   []float32
	closed bool
}

type header struct {
	Magic   [4]byte
	Version uint16
	Dim     uint32
	Count   uint64
}

// New creates an empty index for vectors of dim elements.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("flat: dimension must be positive, got %d", dim)
	}
	return &Index{dim: dim}, nil
}

// Add appends a vector and returns its slot.
func (x *Index) Add(_ context.Context, embedding []float32) (int64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return 0, domain.ErrStoreClosed
	}
	if len(embedding) != x.dim {
		return 0, &domain.DimensionMismatchError{Expected: x.dim, Got: len(embedding)}
	}

	slot := int64(len(x.data) / x.dim)
	x.data = append(x.data, embedding...)
	return slot, nil
}

// Set overwrites the vector in an existing slot.
func (x *Index) Set(_ context.Context, slot int64, embedding []float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return domain.ErrStoreClosed
	}
	if len(embedding) != x.dim {
		return &domain.DimensionMismatchError{Expected: x.dim, Got: len(embedding)}
	}
	if slot < 0 || slot >= int64(x.lenLocked()) {
		return fmt.Errorf("flat: slot %d: %w", slot, domain.ErrNotFound)
	}

	copy(x.data[int(slot)*x.dim:], embedding)
	return nil
}

// Search returns the k nearest vectors by squared L2 distance.
// Ties are broken by slot so results are deterministic.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, domain.ErrStoreClosed
	}
	if len(query) != x.dim {
		return nil, &domain.DimensionMismatchError{Expected: x.dim, Got: len(query)}
	}

	n := x.lenLocked()
	hits := make([]driven.VectorHit, n)
	for i := 0; i < n; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hits[i] = driven.VectorHit{
			Slot:     int64(i),
			Distance: squaredL2(query, x.data[i*x.dim:(i+1)*x.dim]),
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Distance < hits[b].Distance
	})

	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Vector returns a copy of the vector in a slot.
func (x *Index) Vector(slot int64) ([]float32, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if slot < 0 || slot >= int64(x.lenLocked()) {
		return nil, false
	}
	out := make([]float32, x.dim)
	copy(out, x.data[int(slot)*x.dim:])
	return out, true
}

// Truncate drops every vector in slot n or above.
func (x *Index) Truncate(n int) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return domain.ErrStoreClosed
	}
	if n < 0 || n > x.lenLocked() {
		return fmt.Errorf("flat: truncate to %d of %d vectors: %w", n, x.lenLocked(), domain.ErrInvalidInput)
	}
	x.data = x.data[:n*x.dim]
	return nil
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.lenLocked()
}

func (x *Index) lenLocked() int {
	return len(x.data) / x.dim
}

// Dimensions returns the fixed vector size.
func (x *Index) Dimensions() int {
	return x.dim
}

// Close releases the vector data. Further calls fail with domain.ErrStoreClosed.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.data = nil
	return nil
}

// WriteTo serializes the index. It implements io.WriterTo.
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)

	h := header{Magic: magic, Version: formatVersion, Dim: uint32(x.dim), Count: uint64(x.lenLocked())}
	if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
		return cw.n, fmt.Errorf("write header: %w", err)
	}

	var buf [4]byte
	for _, f := range x.data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		if _, err := bw.Write(buf[:]); err != nil {
			return cw.n, fmt.Errorf("write vectors: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return cw.n, fmt.Errorf("flush: %w", err)
	}
	return cw.n, nil
}

// Read deserializes an index written by WriteTo.
func Read(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	var h header
	if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrInvalidFormat, err)
	}
	if h.Magic != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidFormat, h.Magic[:])
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, h.Version)
	}
	if h.Dim == 0 {
		return nil, fmt.Errorf("%w: zero dimension", ErrInvalidFormat)
	}

	total := h.Count * uint64(h.Dim)
	data := make([]float32, 0, total)
	var buf [4]byte
	for i := uint64(0); i < total; i++ {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: read vector data: %w", ErrInvalidFormat, err)
		}
		data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(buf[:])))
	}

	if _, err := br.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after %d vectors", ErrInvalidFormat, h.Count)
	}

	return &Index{dim: int(h.Dim), data: data}, nil
}

// squaredL2 returns the squared Euclidean distance, as reported by
// flat L2 indexes.
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
