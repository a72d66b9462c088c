package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfigStore(t *testing.T) *ConfigStore {
	t.Helper()
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_CreatesNestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	_, err := NewConfigStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := newTestConfigStore(t)

	require.NoError(t, store.Set("embedding.provider", "gemini"))
	require.NoError(t, store.Set("embedding.dimensions", 3072))
	require.NoError(t, store.Set("retrieval.threshold", 0.6))
	require.NoError(t, store.Set("update.insert_on_uncertain", true))

	assert.Equal(t, "gemini", store.GetString("embedding.provider"))
	assert.Equal(t, 3072, store.GetInt("embedding.dimensions"))
	assert.InDelta(t, 0.6, store.GetFloat("retrieval.threshold"), 1e-9)
	assert.True(t, store.GetBool("update.insert_on_uncertain"))

	// Wrong types read as zero values.
	assert.Empty(t, store.GetString("embedding.dimensions"))
	assert.Zero(t, store.GetInt("embedding.provider"))
	assert.False(t, store.GetBool("embedding.provider"))

	_, ok := store.Get("missing")
	assert.False(t, ok)
}

func TestConfigStore_GetFloatAcceptsIntegers(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, store.Set("update.threshold", int64(1)))

	assert.InDelta(t, 1.0, store.GetFloat("update.threshold"), 1e-9)
}

func TestConfigStore_PersistsAsTables(t *testing.T) {
	tmpDir := t.TempDir()

	store1, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store1.Set("llm.provider", "anthropic"))
	require.NoError(t, store1.Set("llm.temperature", 0.2))
	require.NoError(t, store1.Set("ingest.batch_size", 4))

	raw, err := os.ReadFile(store1.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[llm]")
	assert.Contains(t, string(raw), "[ingest]")

	store2, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", store2.GetString("llm.provider"))
	assert.InDelta(t, 0.2, store2.GetFloat("llm.temperature"), 1e-9)
	assert.Equal(t, 4, store2.GetInt("ingest.batch_size"))
}

func TestConfigStore_LoadsHandWrittenTables(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
[store]
data_dir = "/var/lib/complyref"

[retrieval]
threshold = 0.7
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/complyref", store.GetString("store.data_dir"))
	assert.InDelta(t, 0.7, store.GetFloat("retrieval.threshold"), 1e-9)
}

func TestNewConfigStore_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("not = [valid"), 0600))

	_, err := NewConfigStore(tmpDir)
	assert.Error(t, err)
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, store.Set("llm.api_key", "secret"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_GetStringSlice(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, store.Set("watch.patterns", []any{"law-*.jsonl", "feature-*.jsonl"}))

	assert.Equal(t, []string{"law-*.jsonl", "feature-*.jsonl"}, store.GetStringSlice("watch.patterns"))
	assert.Nil(t, store.GetStringSlice("missing"))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := newTestConfigStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("ingest.batch_size", n)
			_ = store.GetInt("ingest.batch_size")
		}(i)
	}
	wg.Wait()

	_, ok := store.Get("ingest.batch_size")
	assert.True(t, ok)
}

func TestNestMap(t *testing.T) {
	got := nestMap(map[string]any{"a.b": 1, "a.c": "x", "d": true})

	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": 1, "c": "x"},
		"d": true,
	}, got)
	assert.Equal(t, map[string]any{"a.b": 1, "a.c": "x", "d": true}, flattenMap(got, ""))
}
