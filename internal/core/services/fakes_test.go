package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
)

// ==================== LLM ====================

// fakeLLM replays scripted responses and records every prompt.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
	opts      []driven.GenerateOptions
}

var _ driven.LLMService = (*fakeLLM)(nil)

func newFakeLLM(responses ...string) *fakeLLM {
	return &fakeLLM{responses: responses}
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return `{}`, nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeLLM) Provider() string             { return "fake" }
func (f *fakeLLM) ModelName() string            { return "fake-model" }
func (f *fakeLLM) Ping(_ context.Context) error { return nil }
func (f *fakeLLM) Close() error                 { return nil }

// ==================== Prompts ====================

type fakePrompts map[string]string

var _ driven.PromptStore = fakePrompts(nil)

func testPrompts() fakePrompts {
	return fakePrompts{
		driven.PromptFeatureCheck: "FEATURE CHECK\n{context}\n---\n{input}",
		driven.PromptLawCheck:     "LAW CHECK\n{context}\n---\n{input}",
		driven.PromptLawUpdate:    "LAW UPDATE\n{context}\n---\n{input}",
	}
}

func (p fakePrompts) Load(name string) (string, error) {
	if t, ok := p[name]; ok {
		return t, nil
	}
	return "", fmt.Errorf("prompt %s: %w", name, domain.ErrNotFound)
}

func (p fakePrompts) Reload() {}

// ==================== Corpus store ====================

// fakeStore is an in-memory corpus store. Queries return scripted hits
// keyed by query text.
type fakeStore struct {
	mu       sync.Mutex
	dir      string
	docs     []domain.Document
	hits     map[string][]domain.ScoredDocument
	queryErr map[string]error
	queries  []string

	addCalls  int
	failAdd   int // 1-based Add call that fails; 0 never
	saveErr   error
	saves     int
	truncates []int
}

var _ driven.CorpusStore = (*fakeStore)(nil)

func newFakeStore(dir string) *fakeStore {
	return &fakeStore{
		dir:      dir,
		hits:     map[string][]domain.ScoredDocument{},
		queryErr: map[string]error{},
	}
}

func (f *fakeStore) Add(_ context.Context, docs []domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.failAdd == f.addCalls {
		return errors.New("embedding quota exceeded")
	}
	for _, d := range docs {
		f.docs = append(f.docs, d.Clone())
	}
	return nil
}

func (f *fakeStore) Truncate(_ context.Context, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.truncates = append(f.truncates, n)
	if n < len(f.docs) {
		f.docs = f.docs[:n]
	}
	return nil
}

func (f *fakeStore) Save(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return f.saveErr
}

func (f *fakeStore) Query(_ context.Context, text string, _ int, _ float64) ([]domain.ScoredDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if err := f.queryErr[text]; err != nil {
		return nil, err
	}
	return f.hits[text], nil
}

func (f *fakeStore) ReplaceOrInsert(_ context.Context, doc domain.Document, matchID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if matchID != "" {
		for i, d := range f.docs {
			if d.ID() == matchID {
				f.docs[i] = doc.Clone()
				return true, nil
			}
		}
	}
	f.docs = append(f.docs, doc.Clone())
	return false, nil
}

func (f *fakeStore) Documents(_ context.Context) ([]domain.StoredDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StoredDocument, len(f.docs))
	for i, d := range f.docs {
		out[i] = domain.StoredDocument{Slot: int64(i), Document: d.Clone()}
	}
	return out, nil
}

func (f *fakeStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func (f *fakeStore) Dir() string  { return f.dir }
func (f *fakeStore) Close() error { return nil }

func hit(slot int64, score float64, doc domain.Document) domain.ScoredDocument {
	return domain.ScoredDocument{StoredDocument: domain.StoredDocument{Slot: slot, Document: doc}, Score: score}
}

// ==================== Task store ====================

type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[string]domain.TaskRecord
	order []string
	saves []domain.TaskRecord
}

var _ driven.TaskStore = (*fakeTaskStore)(nil)

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]domain.TaskRecord{}}
}

func (f *fakeTaskStore) SaveTask(_ context.Context, task domain.TaskRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; !ok {
		f.order = append(f.order, task.ID)
	}
	f.tasks[task.ID] = task
	f.saves = append(f.saves, task)
	return nil
}

func (f *fakeTaskStore) GetTask(_ context.Context, id string) (*domain.TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (f *fakeTaskStore) ListTasks(_ context.Context, limit int) ([]domain.TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TaskRecord
	for i := len(f.order) - 1; i >= 0; i-- {
		out = append(out, f.tasks[f.order[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ==================== Fixtures ====================

func lawDoc(id, code, body string) domain.Document {
	return domain.Document{
		Content: body,
		Metadata: map[string]string{
			domain.FieldID:            id,
			domain.FieldLawCode:       code,
			domain.FieldReferenceFile: "laws.jsonl",
		},
	}
}

func featureDoc(id, featureID, body string) domain.Document {
	return domain.Document{
		Content: body,
		Metadata: map[string]string{
			domain.FieldID:            id,
			domain.FieldFeatureID:     featureID,
			domain.FieldReferenceFile: "feature-Atlas.jsonl",
		},
	}
}

// noSleep records requested waits instead of sleeping.
type noSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.mu.Lock()
	n.waits = append(n.waits, d)
	n.mu.Unlock()
	return ctx.Err()
}

const (
	emptyProvisions = `{"provisions": []}`
	emptyFeatures   = `{"features": []}`
	emptyMatches    = `{"matches": []}`
)
