package inbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSettle = 20 * time.Millisecond

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		kind Kind
		ok   bool
	}{
		{"law-eu.jsonl", KindLaw, true},
		{"/inbox/law-2024.jsonl", KindLaw, true},
		{"feature-app.jsonl", KindFeature, true},
		{"terms-app.jsonl", "", false},
		{"law-eu.json", "", false},
		{".law-eu.jsonl", "", false},
		{"laws.jsonl", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			kind, ok := Classify(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestHandleFsEvent(t *testing.T) {
	dir := t.TempDir()
	law := filepath.Join(dir, "law-a.jsonl")
	require.NoError(t, os.WriteFile(law, []byte("{}\n"), 0600))
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0600))
	sub := filepath.Join(dir, "law-dir.jsonl")
	require.NoError(t, os.Mkdir(sub, 0700))

	w := New(dir, testSettle)
	tests := []struct {
		name  string
		event fsnotify.Event
		ok    bool
	}{
		{"create law file", fsnotify.Event{Name: law, Op: fsnotify.Create}, true},
		{"write law file", fsnotify.Event{Name: law, Op: fsnotify.Write}, true},
		{"write and chmod", fsnotify.Event{Name: law, Op: fsnotify.Write | fsnotify.Chmod}, true},
		{"chmod only", fsnotify.Event{Name: law, Op: fsnotify.Chmod}, false},
		{"remove", fsnotify.Event{Name: filepath.Join(dir, "law-gone.jsonl"), Op: fsnotify.Remove}, false},
		{"unrecognised name", fsnotify.Event{Name: other, Op: fsnotify.Create}, false},
		{"directory", fsnotify.Event{Name: sub, Op: fsnotify.Create}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := w.handleFsEvent(tt.event)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.event.Name, path)
			}
		})
	}
}

func TestExisting_AttachesCompanions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"feature-app.jsonl", "terms-app.jsonl", "law-b.jsonl", "law-a.jsonl", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0600))
	}

	arrivals, err := New(dir, 0).Existing()
	require.NoError(t, err)
	require.Len(t, arrivals, 3)

	assert.Equal(t, Arrival{
		Kind:  KindFeature,
		Path:  filepath.Join(dir, "feature-app.jsonl"),
		Terms: filepath.Join(dir, "terms-app.jsonl"),
	}, arrivals[0])
	assert.Equal(t, filepath.Join(dir, "law-a.jsonl"), arrivals[1].Path)
	assert.Equal(t, filepath.Join(dir, "law-b.jsonl"), arrivals[2].Path)
}

func TestWatch_EmitsSettledFiles(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, testSettle)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	arrivals, err := w.Watch(ctx)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0600))
	path := filepath.Join(dir, "law-new.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0600))

	select {
	case a := <-arrivals:
		assert.Equal(t, KindLaw, a.Kind)
		assert.Equal(t, path, a.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for arrival")
	}
}

func TestWatch_ClosesChannelOnCancel(t *testing.T) {
	w := New(t.TempDir(), testSettle)
	ctx, cancel := context.WithCancel(context.Background())

	arrivals, err := w.Watch(ctx)
	require.NoError(t, err)
	defer w.Close()

	cancel()
	select {
	case _, ok := <-arrivals:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), 0)

	_, err := w.Watch(context.Background())
	assert.Error(t, err)
	assert.NoError(t, w.Close())
}
