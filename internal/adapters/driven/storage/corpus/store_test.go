package corpus

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
	"github.com/custodia-labs/complyref/internal/core/services"
)

const testDim = 3

// fakeEmbedder returns fixed vectors for known texts and a stable hashed
// unit vector for anything else.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int
	model   string
	calls   int
	err     error
	failOn  map[string]error
}

var _ driven.EmbeddingService = (*fakeEmbedder)(nil)

func newFakeEmbedder(vectors map[string][]float32) *fakeEmbedder {
	if vectors == nil {
		vectors = map[string][]float32{}
	}
	return &fakeEmbedder{vectors: vectors, dim: testDim, model: "fake-embed"}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := f.failOn[text]; err != nil {
		return nil, err
	}
	return f.vectorFor(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) vectorFor(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	v := make([]float32, f.dim)
	var norm float64
	for i := range v {
		v[i] = float32((seed>>(i*8))&0xff) + 1
		norm += float64(v[i] * v[i])
	}
	for i := range v {
		v[i] /= float32(math.Sqrt(norm))
	}
	return v
}

func (f *fakeEmbedder) Dimensions() int              { return f.dim }
func (f *fakeEmbedder) ModelName() string            { return f.model }
func (f *fakeEmbedder) Ping(_ context.Context) error { return nil }
func (f *fakeEmbedder) Close() error                 { return nil }

func lawDoc(id, content string) domain.Document {
	return domain.Document{
		Content:  content,
		Metadata: map[string]string{domain.FieldID: id, domain.FieldLawCode: "LC-" + id},
	}
}

func openTestStore(t *testing.T, dir string, emb *fakeEmbedder) *Store {
	t.Helper()
	s, err := Open(context.Background(), dir, Options{Embedder: emb})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRelevance(t *testing.T) {
	assert.InDelta(t, 1.0, Relevance(0), 1e-9)
	assert.InDelta(t, 0.0, Relevance(float32(math.Sqrt2)), 1e-6)
	assert.Less(t, Relevance(2), 0.0)
}

func TestOpen_RequiresEmbedder(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), Options{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestOpen_MissingDirCreatesAndPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "law_vector_store")
	s := openTestStore(t, dir, newFakeEmbedder(nil))

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, dir, s.Dir())
	assert.Equal(t, testDim, s.Dimensions())
	for _, name := range []string{IndexFile, DocstoreFile, ManifestFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestStore_EmptyRoundTripQueriesEmpty(t *testing.T) {
	dir := t.TempDir()
	emb := newFakeEmbedder(nil)
	s := openTestStore(t, dir, emb)
	require.NoError(t, s.Save(context.Background()))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, dir, emb)
	hits, err := reopened.Query(context.Background(), "anything", 0, 0.6)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_ReloadSizeIsBeforePlusBatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := newFakeEmbedder(nil)

	s := openTestStore(t, dir, emb)
	require.NoError(t, s.Add(ctx, []domain.Document{lawDoc("L1", "one")}))
	require.NoError(t, s.Save(ctx))
	before := s.Len()

	require.NoError(t, s.Add(ctx, []domain.Document{lawDoc("L2", "two"), lawDoc("L3", "three")}))
	require.NoError(t, s.Save(ctx))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, dir, emb)
	assert.Equal(t, before+2, reopened.Len())

	docs, err := reopened.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "L3", docs[2].ID())
	assert.Equal(t, "LC-L2", docs[1].Metadata[domain.FieldLawCode])
}

func TestStore_AddRejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), newFakeEmbedder(nil))
	require.NoError(t, s.Add(ctx, []domain.Document{lawDoc("L1", "one")}))

	err := s.Add(ctx, []domain.Document{lawDoc("L1", "again")})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	err = s.Add(ctx, []domain.Document{lawDoc("L2", "a"), lawDoc("L2", "b")})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, 1, s.Len())
}

func TestStore_AddRequiresID(t *testing.T) {
	s := openTestStore(t, t.TempDir(), newFakeEmbedder(nil))
	err := s.Add(context.Background(), []domain.Document{{Content: "no id"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_AddDimensionMismatch(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{"short": {1, 0}})
	s := openTestStore(t, t.TempDir(), emb)

	err := s.Add(context.Background(), []domain.Document{lawDoc("L1", "short")})
	var dm *domain.DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, testDim, dm.Expected)
	assert.Equal(t, 2, dm.Got)
	assert.Zero(t, s.Len())
}

func TestStore_AddEmbedFailureLeavesStoreUnchanged(t *testing.T) {
	emb := newFakeEmbedder(nil)
	s := openTestStore(t, t.TempDir(), emb)
	emb.err = errors.New("quota exceeded")

	err := s.Add(context.Background(), []domain.Document{lawDoc("L1", "x")})
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Zero(t, s.Len())
}

func TestStore_TruncateDropsUnsavedAdds(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), newFakeEmbedder(nil))
	require.NoError(t, s.Add(ctx, []domain.Document{lawDoc("L1", "one")}))
	require.NoError(t, s.Add(ctx, []domain.Document{lawDoc("L2", "two"), lawDoc("L3", "three")}))

	require.NoError(t, s.Truncate(ctx, 1))

	assert.Equal(t, 1, s.Len())
	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "L1", docs[0].ID())

	// Truncated ids may be added again.
	require.NoError(t, s.Add(ctx, []domain.Document{lawDoc("L2", "two")}))
	assert.Equal(t, 2, s.Len())

	assert.ErrorIs(t, s.Truncate(ctx, 9), domain.ErrInvalidInput)
}

func TestStore_FailedIngestLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := newFakeEmbedder(nil)
	emb.failOn = map[string]error{"c": errors.New("quota")}
	s := openTestStore(t, dir, emb)
	ingestor := services.NewBatchIngestor()

	err := ingestor.Ingest(ctx, s, []domain.Document{lawDoc("A", "a"), lawDoc("B", "b"), lawDoc("C", "c")}, 2, 0)
	require.ErrorContains(t, err, "ingest batch 1")
	assert.Zero(t, s.Len(), "the first chunk is rolled back")

	hits, err := s.Query(ctx, "a", 0, 0.99)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, ingestor.Ingest(ctx, s, []domain.Document{lawDoc("E", "e")}, 2, 0))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, dir, emb)
	docs, err := reopened.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "E", docs[0].ID())
	assert.Equal(t, int64(0), docs[0].Slot)
}

func TestStore_QueryThresholdAndOrder(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder(map[string][]float32{
		"exact": {1, 0, 0},
		"close": {0.8, 0.6, 0},
		"far":   {0, 0, 1},
		"query": {1, 0, 0},
	})
	s := openTestStore(t, t.TempDir(), emb)
	require.NoError(t, s.Add(ctx, []domain.Document{
		lawDoc("far", "far"),
		lawDoc("close", "close"),
		lawDoc("exact", "exact"),
	}))

	hits, err := s.Query(ctx, "query", 0, 0.6)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].ID())
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "close", hits[1].ID())
	assert.InDelta(t, 1-0.4/math.Sqrt2, hits[1].Score, 1e-6)

	top, err := s.Query(ctx, "query", 1, 0)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "exact", top[0].ID())

	none, err := s.Query(ctx, "query", 0, 1.5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ReplaceKeepsSizeAndChangesContent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := newFakeEmbedder(nil)
	s := openTestStore(t, dir, emb)
	require.NoError(t, s.Add(ctx, []domain.Document{lawDoc("L1", "original"), lawDoc("L2", "other")}))
	require.NoError(t, s.Save(ctx))

	replaced, err := s.ReplaceOrInsert(ctx, lawDoc("L1", "amended"), "L1")
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, 2, s.Len())
	require.NoError(t, s.Close())

	reopened := openTestStore(t, dir, emb)
	docs, err := reopened.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(0), docs[0].Slot)
	assert.Equal(t, "amended", docs[0].Content)

	hits, err := reopened.Query(ctx, "amended", 1, 0.99)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "L1", hits[0].ID())
}

func TestStore_InsertGrowsSizeAndLeavesOthers(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), newFakeEmbedder(nil))
	require.NoError(t, s.Add(ctx, []domain.Document{lawDoc("L1", "original")}))

	replaced, err := s.ReplaceOrInsert(ctx, lawDoc("L9", "brand new"), "")
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, 2, s.Len())

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	assert.Equal(t, "original", docs[0].Content)
	assert.Equal(t, "L9", docs[1].ID())
}

func TestStore_ReplaceOrInsertFailedSaveKeepsState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), newFakeEmbedder(nil))
	require.NoError(t, s.Add(ctx, []domain.Document{lawDoc("L1", "original")}))
	require.NoError(t, s.Save(ctx))

	// The docstore snapshot write fails from here on.
	require.NoError(t, s.snapshot.Close())

	_, err := s.ReplaceOrInsert(ctx, lawDoc("L1", "amended"), "L1")
	require.Error(t, err)
	_, err = s.ReplaceOrInsert(ctx, lawDoc("L2", "brand new"), "")
	require.Error(t, err)

	assert.Equal(t, 1, s.Len())
	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "original", docs[0].Content)

	hits, err := s.Query(ctx, "original", 1, 0.99)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "L1", hits[0].ID())
}

func TestStore_ReplaceUnknownMatchInserts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), newFakeEmbedder(nil))

	replaced, err := s.ReplaceOrInsert(ctx, lawDoc("L1", "x"), "ghost")
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, 1, s.Len())
}

func TestStore_ReplaceRejectsIDCollision(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), newFakeEmbedder(nil))
	require.NoError(t, s.Add(ctx, []domain.Document{lawDoc("L1", "a"), lawDoc("L2", "b")}))

	_, err := s.ReplaceOrInsert(ctx, lawDoc("L2", "c"), "L1")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = s.ReplaceOrInsert(ctx, lawDoc("L1", "d"), "")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, 2, s.Len())
}

func TestOpen_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, newFakeEmbedder(nil))
	require.NoError(t, s.Close())

	_, err := Open(context.Background(), dir, Options{Embedder: newFakeEmbedder(nil), Dimension: 8})
	var dm *domain.DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, testDim, dm.Expected)
	assert.Equal(t, 8, dm.Got)
}

func TestOpen_CorruptStores(t *testing.T) {
	tests := []struct {
		name   string
		mangle func(t *testing.T, dir string)
	}{
		{
			name: "missing manifest",
			mangle: func(t *testing.T, dir string) {
				require.NoError(t, os.Remove(filepath.Join(dir, ManifestFile)))
			},
		},
		{
			name: "garbage manifest",
			mangle: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte("not = [toml"), 0600))
			},
		},
		{
			name: "index rewritten after manifest",
			mangle: func(t *testing.T, dir string) {
				path := filepath.Join(dir, IndexFile)
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				data[len(data)-1] ^= 0xff
				require.NoError(t, os.WriteFile(path, data, 0600))
			},
		},
		{
			name: "truncated index",
			mangle: func(t *testing.T, dir string) {
				path := filepath.Join(dir, IndexFile)
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0600))
			},
		},
		{
			name: "stray files only",
			mangle: func(t *testing.T, dir string) {
				for _, name := range []string{IndexFile, DocstoreFile, ManifestFile} {
					require.NoError(t, os.Remove(filepath.Join(dir, name)))
				}
				require.NoError(t, os.WriteFile(filepath.Join(dir, "index.faiss"), []byte("x"), 0600))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			emb := newFakeEmbedder(nil)

			s, err := Open(ctx, dir, Options{Embedder: emb})
			require.NoError(t, err)
			require.NoError(t, s.Add(ctx, []domain.Document{lawDoc("L1", "one")}))
			require.NoError(t, s.Save(ctx))
			require.NoError(t, s.Close())

			tt.mangle(t, dir)

			_, err = Open(ctx, dir, Options{Embedder: emb})
			var corrupt *domain.StoreCorruptError
			require.True(t, errors.As(err, &corrupt), "got %v", err)
			assert.Equal(t, dir, corrupt.Path)
			assert.ErrorIs(t, err, domain.ErrStoreCorrupt)
		})
	}
}

func TestStore_ClosedOperations(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), newFakeEmbedder(nil))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Add(ctx, []domain.Document{lawDoc("L1", "x")}), domain.ErrStoreClosed)
	assert.ErrorIs(t, s.Save(ctx), domain.ErrStoreClosed)
	_, err := s.Query(ctx, "x", 0, 0)
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
	_, err = s.Documents(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
	assert.Zero(t, s.Len())
}
