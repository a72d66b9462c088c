// Package inbox watches a drop directory for new record files.
//
// Files are recognised by name:
//
//	law-*.jsonl        law provisions
//	feature-*.jsonl    project features
//
// A feature file may have companions sharing its suffix: terms-<suffix>.jsonl
// and compliance-<suffix>.jsonl are attached when present.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/complyref/internal/logger"
)

// Kind is the record type a file holds.
type Kind string

// Recognised file kinds.
const (
	KindLaw     Kind = "law"
	KindFeature Kind = "feature"
)

// DefaultSettle is how long a file must stay unchanged before it is emitted.
const DefaultSettle = 500 * time.Millisecond

const extension = ".jsonl"

// Arrival is a complete record file ready for ingestion.
type Arrival struct {
	Kind Kind
	Path string

	// Terms and Compliance are companion files of a feature arrival.
	Terms      string
	Compliance string
}

// Watcher emits record files dropped into a directory.
type Watcher struct {
	dir    string
	settle time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// New creates a watcher for dir. A zero settle uses DefaultSettle.
func New(dir string, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{dir: dir, settle: settle}
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Existing returns the record files already in the directory, in name order.
func (w *Watcher) Existing() ([]Arrival, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	var arrivals []Arrival
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if a, ok := w.arrival(filepath.Join(w.dir, entry.Name())); ok {
			arrivals = append(arrivals, a)
		}
	}
	sort.Slice(arrivals, func(i, j int) bool { return arrivals[i].Path < arrivals[j].Path })
	return arrivals, nil
}

// Watch starts watching and returns a channel of arrivals. A file is
// emitted once it has not been written for the settle period. The channel
// is closed when ctx is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) (<-chan Arrival, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.mu.Lock()
	w.watcher = fsw
	w.mu.Unlock()

	out := make(chan Arrival)
	go w.loop(ctx, fsw, out)
	return out, nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Arrival) {
	defer close(out)

	ready := make(chan string)
	done := make(chan struct{})
	defer close(done)
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			path, ok := w.handleFsEvent(event)
			if !ok {
				continue
			}
			if t, exists := pending[path]; exists {
				t.Reset(w.settle)
				continue
			}
			pending[path] = time.AfterFunc(w.settle, func() {
				select {
				case ready <- path:
				case <-done:
				}
			})

		case path := <-ready:
			if _, ok := pending[path]; !ok {
				continue
			}
			delete(pending, path)
			a, ok := w.arrival(path)
			if !ok {
				continue
			}
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("inbox watcher: %v", err)
		}
	}
}

// handleFsEvent returns the path of a recognised file that was created or
// written. Removals, renames away and chmods are ignored.
func (w *Watcher) handleFsEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if _, ok := Classify(event.Name); !ok {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return event.Name, true
}

// arrival builds the arrival for a recognised file that still exists.
func (w *Watcher) arrival(path string) (Arrival, bool) {
	kind, ok := Classify(path)
	if !ok {
		return Arrival{}, false
	}
	if _, err := os.Stat(path); err != nil {
		return Arrival{}, false
	}

	a := Arrival{Kind: kind, Path: path}
	if kind == KindFeature {
		suffix := strings.TrimPrefix(filepath.Base(path), string(KindFeature)+"-")
		a.Terms = companion(filepath.Dir(path), "terms-"+suffix)
		a.Compliance = companion(filepath.Dir(path), "compliance-"+suffix)
	}
	return a, true
}

func companion(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Classify returns the kind of a record file from its name.
// Hidden files never match.
func Classify(path string) (Kind, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, extension) {
		return "", false
	}
	switch {
	case strings.HasPrefix(name, string(KindLaw)+"-"):
		return KindLaw, true
	case strings.HasPrefix(name, string(KindFeature)+"-"):
		return KindFeature, true
	default:
		return "", false
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	if errors.Is(err, fsnotify.ErrClosed) {
		return nil
	}
	return err
}
