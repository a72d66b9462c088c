// Package corpus implements a persisted, similarity-indexed document store
// for one corpus (laws or features).
//
// A store directory holds three files:
//
//	index.bin      flat L2 vectors, one per slot
//	docstore.db    SQLite table of slot -> document
//	manifest.toml  completion marker with dimension, count and checksum
//
// Save writes the index and docstore first and the manifest last, so Open can
// tell a complete save from an interrupted one.
package corpus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/custodia-labs/complyref/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/complyref/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/complyref/internal/adapters/driven/vector/flat"
	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
	"github.com/custodia-labs/complyref/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.CorpusStore = (*Store)(nil)

// Options configures a corpus store.
type Options struct {
	// Embedder embeds documents and queries. Required.
	Embedder driven.EmbeddingService

	// Dimension is the vector size. Zero uses Embedder.Dimensions().
	Dimension int
}

// Store is a corpus store backed by a directory.
// It is safe for concurrent readers and a single writer.
type Store struct {
	mu       sync.RWMutex
	dir      string
	dim      int
	embedder driven.EmbeddingService

	index    *flat.Index
	docs     *memory.DocumentStore
	snapshot *sqlite.Store
	closed   bool
}

// Relevance converts a squared L2 distance to a similarity score in
// (-inf, 1]. Identical vectors score 1.
func Relevance(distance float32) float64 {
	return 1 - float64(distance)/math.Sqrt2
}

// Open opens the store in dir, creating and persisting an empty one when
// dir is missing or empty.
func Open(ctx context.Context, dir string, opts Options) (*Store, error) {
	if opts.Embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	dim := opts.Dimension
	if dim == 0 {
		dim = opts.Embedder.Dimensions()
	}
	if dim <= 0 {
		return nil, fmt.Errorf("corpus: dimension must be positive, got %d", dim)
	}

	empty, err := isEmptyDir(dir)
	if err != nil {
		return nil, err
	}
	if empty {
		return create(ctx, dir, dim, opts.Embedder)
	}
	return load(ctx, dir, dim, opts.Embedder)
}

func create(ctx context.Context, dir string, dim int, embedder driven.EmbeddingService) (*Store, error) {
	logger.Debug("creating empty %d-dimension store at %s", dim, dir)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	index, err := flat.New(dim)
	if err != nil {
		return nil, err
	}
	snapshot, err := sqlite.Open(filepath.Join(dir, DocstoreFile))
	if err != nil {
		return nil, fmt.Errorf("open docstore: %w", err)
	}

	s := &Store{
		dir:      dir,
		dim:      dim,
		embedder: embedder,
		index:    index,
		docs:     memory.NewDocumentStore(),
		snapshot: snapshot,
	}
	if err := s.Save(ctx); err != nil {
		snapshot.Close()
		return nil, fmt.Errorf("persist empty store: %w", err)
	}
	return s, nil
}

func load(ctx context.Context, dir string, dim int, embedder driven.EmbeddingService) (*Store, error) {
	corrupt := func(reason string, err error) error {
		return &domain.StoreCorruptError{Path: dir, Reason: reason, Err: err}
	}

	for _, name := range []string{ManifestFile, IndexFile, DocstoreFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return nil, corrupt("missing "+name, err)
		}
	}

	m, err := readManifest(dir)
	if err != nil {
		return nil, corrupt("unreadable manifest", err)
	}
	if m.Dimension != dim {
		return nil, &domain.DimensionMismatchError{Expected: m.Dimension, Got: dim}
	}
	if m.Model != "" && m.Model != embedder.ModelName() {
		logger.Warn("store %s was built with %s, querying with %s", dir, m.Model, embedder.ModelName())
	}

	raw, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, corrupt("unreadable index", err)
	}
	index, err := flat.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, corrupt("invalid index", err)
	}
	if index.Dimensions() != m.Dimension {
		return nil, corrupt(fmt.Sprintf("index dimension %d, manifest says %d", index.Dimensions(), m.Dimension), nil)
	}

	snapshot, err := sqlite.Open(filepath.Join(dir, DocstoreFile))
	if err != nil {
		return nil, corrupt("unreadable docstore", err)
	}
	rows, err := snapshot.SnapshotStore().List(ctx)
	if err != nil {
		snapshot.Close()
		return nil, corrupt("unreadable docstore", err)
	}

	sum, err := checksum(raw, rows)
	if err != nil {
		snapshot.Close()
		return nil, err
	}
	switch {
	case sum != m.Checksum:
		snapshot.Close()
		return nil, corrupt("checksum mismatch", nil)
	case len(rows) != m.Count || index.Len() != m.Count:
		snapshot.Close()
		return nil, corrupt(fmt.Sprintf("manifest count %d, index %d, docstore %d", m.Count, index.Len(), len(rows)), nil)
	}

	docs := memory.NewDocumentStore()
	for _, row := range rows {
		if err := docs.Put(ctx, row.Slot, row.Document); err != nil {
			snapshot.Close()
			return nil, fmt.Errorf("load slot %d: %w", row.Slot, err)
		}
	}

	logger.Debug("loaded %d documents from %s", len(rows), dir)
	return &Store{
		dir:      dir,
		dim:      dim,
		embedder: embedder,
		index:    index,
		docs:     docs,
		snapshot: snapshot,
	}, nil
}

// Add embeds and inserts docs in input order. It does not persist.
func (s *Store) Add(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(docs))
	texts := make([]string, len(docs))
	for i, d := range docs {
		id := d.ID()
		if id == "" {
			return fmt.Errorf("document %d has no id: %w", i, domain.ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("document %s: %w", id, domain.ErrAlreadyExists)
		}
		seen[id] = struct{}{}
		texts[i] = d.Content
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embed documents: got %d vectors for %d documents", len(vectors), len(docs))
	}
	for _, v := range vectors {
		if len(v) != s.dim {
			return &domain.DimensionMismatchError{Expected: s.dim, Got: len(v)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}
	for id := range seen {
		if _, err := s.docs.FindSlot(ctx, id); err == nil {
			return fmt.Errorf("document %s: %w", id, domain.ErrAlreadyExists)
		}
	}

	base := s.index.Len()
	for i, d := range docs {
		slot, err := s.index.Add(ctx, vectors[i])
		if err == nil {
			err = s.docs.Put(ctx, slot, d)
		}
		if err != nil {
			return errors.Join(fmt.Errorf("add document %s: %w", d.ID(), err), s.truncateLocked(base))
		}
	}
	return nil
}

// Truncate drops every document in slot n or above, undoing Adds that
// were not saved. Saved state on disk is untouched.
func (s *Store) Truncate(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return s.truncateLocked(n)
}

func (s *Store) truncateLocked(n int) error {
	if err := s.index.Truncate(n); err != nil {
		return fmt.Errorf("truncate %s: %w", s.dir, err)
	}
	s.docs.DeleteFrom(int64(n))
	return nil
}

// Save persists the index, then the docstore, then the manifest.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	if s.closed {
		return domain.ErrStoreClosed
	}
	defer logger.Timed("save " + s.dir)()

	var buf bytes.Buffer
	if _, err := s.index.WriteTo(&buf); err != nil {
		return fmt.Errorf("serialize index: %w", err)
	}
	rows, err := s.docs.List(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	sum, err := checksum(buf.Bytes(), rows)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(filepath.Join(s.dir, IndexFile), buf.Bytes()); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	if err := s.snapshot.SnapshotStore().ReplaceAll(ctx, rows); err != nil {
		return fmt.Errorf("save docstore: %w", err)
	}

	m := manifest{
		Version:   manifestVersion,
		Dimension: s.dim,
		Count:     len(rows),
		Model:     s.embedder.ModelName(),
		SavedAt:   time.Now().UTC().Truncate(time.Second),
		Checksum:  sum,
	}
	if err := writeManifest(s.dir, m); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// Query returns up to k documents scoring at least threshold against text,
// by descending score. k <= 0 means all documents.
func (s *Store) Query(ctx context.Context, text string, k int, threshold float64) ([]domain.ScoredDocument, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, domain.ErrStoreClosed
	}

	hits, err := s.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]domain.ScoredDocument, 0, len(hits))
	for _, hit := range hits {
		score := Relevance(hit.Distance)
		if score < threshold {
			// Hits are distance-ordered; the rest score lower.
			break
		}
		doc, err := s.docs.Get(ctx, hit.Slot)
		if err != nil {
			return nil, fmt.Errorf("resolve slot %d: %w", hit.Slot, err)
		}
		results = append(results, domain.ScoredDocument{
			StoredDocument: domain.StoredDocument{Slot: hit.Slot, Document: doc},
			Score:          score,
		})
	}
	return results, nil
}

// ReplaceOrInsert overwrites the document whose id is matchID in place, or
// appends doc when matchID is empty or unknown. It always saves.
func (s *Store) ReplaceOrInsert(ctx context.Context, doc domain.Document, matchID string) (bool, error) {
	if doc.ID() == "" {
		return false, fmt.Errorf("document has no id: %w", domain.ErrInvalidInput)
	}

	vec, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return false, fmt.Errorf("embed document: %w", err)
	}
	if len(vec) != s.dim {
		return false, &domain.DimensionMismatchError{Expected: s.dim, Got: len(vec)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, domain.ErrStoreClosed
	}

	slot, replaced, err := s.targetSlot(ctx, doc.ID(), matchID)
	if err != nil {
		return false, err
	}

	// Restores the in-memory state when the change cannot be committed.
	var undo func() error
	if replaced {
		prevVec, _ := s.index.Vector(slot)
		prevDoc, err := s.docs.Get(ctx, slot)
		if err != nil {
			return false, fmt.Errorf("read slot %d: %w", slot, err)
		}
		if err := s.index.Set(ctx, slot, vec); err != nil {
			return false, fmt.Errorf("re-index slot %d: %w", slot, err)
		}
		undo = func() error {
			return errors.Join(s.index.Set(ctx, slot, prevVec), s.docs.Put(ctx, slot, prevDoc))
		}
	} else {
		base := s.index.Len()
		if slot, err = s.index.Add(ctx, vec); err != nil {
			return false, fmt.Errorf("index document %s: %w", doc.ID(), err)
		}
		undo = func() error { return s.truncateLocked(base) }
	}

	if err := s.docs.Put(ctx, slot, doc); err != nil {
		return false, errors.Join(fmt.Errorf("store document %s: %w", doc.ID(), err), undo())
	}
	if err := s.saveLocked(ctx); err != nil {
		return false, errors.Join(err, undo())
	}
	return replaced, nil
}

// targetSlot resolves where doc goes. The new id must not collide with a
// document other than the one being replaced.
func (s *Store) targetSlot(ctx context.Context, docID, matchID string) (int64, bool, error) {
	var (
		slot     int64
		replaced bool
	)
	if matchID != "" {
		found, err := s.docs.FindSlot(ctx, matchID)
		switch {
		case err == nil:
			slot, replaced = found, true
		case !errors.Is(err, domain.ErrNotFound):
			return 0, false, err
		default:
			logger.Warn("match %s not found in %s, inserting", matchID, s.dir)
		}
	}

	if existing, err := s.docs.FindSlot(ctx, docID); err == nil && (!replaced || existing != slot) {
		return 0, false, fmt.Errorf("document %s: %w", docID, domain.ErrAlreadyExists)
	}
	return slot, replaced, nil
}

// Documents returns all documents ordered by slot.
func (s *Store) Documents(ctx context.Context) ([]domain.StoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrStoreClosed
	}
	return s.docs.List(ctx)
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return s.index.Len()
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Dimensions returns the vector size fixed at creation.
func (s *Store) Dimensions() int {
	return s.dim
}

// Close releases the index and docstore without saving.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.index.Close(), s.snapshot.Close())
}

func isEmptyDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read store directory: %w", err)
	}
	return len(entries) == 0, nil
}
