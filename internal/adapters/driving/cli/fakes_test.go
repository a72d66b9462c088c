package cli

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driving"
)

// execute runs the root command with fresh flag state and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores every flag of cmd and its children to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// withServices installs fakes for the duration of a test.
func withServices(t *testing.T, c *fakeCompliance, q *fakeQueue, s *fakeSettings, r *fakeReader) {
	t.Helper()
	prevC, prevQ, prevS, prevR, prevB := complianceService, taskQueue, settingsService, recordReader, bootstrap
	t.Cleanup(func() {
		complianceService, taskQueue, settingsService, recordReader, bootstrap = prevC, prevQ, prevS, prevR, prevB
	})

	complianceService, taskQueue, settingsService, recordReader, bootstrap = nil, nil, nil, nil, nil
	if c != nil {
		complianceService = c
	}
	if q != nil {
		taskQueue = q
	}
	if s != nil {
		settingsService = s
	}
	if r != nil {
		recordReader = r
	}
}

// ==================== Compliance ====================

type fakeCompliance struct {
	mu sync.Mutex

	laws     []domain.LawRecord
	bundles  []domain.ProjectBundle
	checked  []domain.LawRecord
	updated  []domain.LawRecord
	corpus   domain.Corpus
	limit    int
	docs     []domain.StoredDocument
	result   *domain.ViolationResult
	outcomes []*domain.UpdateOutcome
	err      error
	failAt   int // UpdateLaw call (1-based) that returns err; 0 means every call
}

func (f *fakeCompliance) IngestLaws(_ context.Context, laws []domain.LawRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.laws = append(f.laws, laws...)
	return len(laws), nil
}

func (f *fakeCompliance) IngestFeatures(_ context.Context, bundle domain.ProjectBundle) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.bundles = append(f.bundles, bundle)
	return len(bundle.Features), nil
}

func (f *fakeCompliance) CheckFeatures(_ context.Context, bundle domain.ProjectBundle) (*domain.ViolationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bundles = append(f.bundles, bundle)
	return f.result, f.err
}

func (f *fakeCompliance) CheckLaws(_ context.Context, laws []domain.LawRecord) (*domain.ViolationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, laws...)
	return f.result, f.err
}

func (f *fakeCompliance) UpdateLaw(_ context.Context, law domain.LawRecord) (*domain.UpdateOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, law)
	n := len(f.updated)
	if f.err != nil && (f.failAt == 0 || f.failAt == n) {
		return nil, f.err
	}
	if n <= len(f.outcomes) {
		return f.outcomes[n-1], nil
	}
	return &domain.UpdateOutcome{Decision: domain.NoMatch(), DocumentID: law.ID, StoreSize: n}, nil
}

func (f *fakeCompliance) Inspect(_ context.Context, corpus domain.Corpus, limit int) ([]domain.StoredDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corpus, f.limit = corpus, limit
	return f.docs, f.err
}

// ==================== Task queue ====================

// fakeQueue runs each task synchronously on Submit.
type fakeQueue struct {
	mu      sync.Mutex
	names   []string
	history []domain.TaskRecord
	err     error
}

type fakeTask struct {
	id    string
	state domain.TaskState
	err   error
}

func (t *fakeTask) ID() string                   { return t.id }
func (t *fakeTask) State() domain.TaskState      { return t.state }
func (t *fakeTask) Wait(_ context.Context) error { return t.err }

func (q *fakeQueue) Submit(ctx context.Context, name string, fn driving.TaskFunc) (driving.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.names = append(q.names, name)

	task := &fakeTask{id: fmt.Sprintf("task-%04d", len(q.names)), state: domain.TaskSucceeded}
	if err := fn(ctx); err != nil {
		task.state, task.err = domain.TaskFailed, err
	}
	return task, nil
}

func (q *fakeQueue) History(_ context.Context, limit int) ([]domain.TaskRecord, error) {
	if limit > 0 && len(q.history) > limit {
		return q.history[:limit], nil
	}
	return q.history, nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) submitted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.names...)
}

// ==================== Settings ====================

type fakeSettings struct {
	settings    domain.AppSettings
	set         map[string]string
	validateErr error
	pingErr     error
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{settings: domain.DefaultAppSettings(), set: map[string]string{}}
}

func (f *fakeSettings) Get() (*domain.AppSettings, error) {
	s := f.settings
	return &s, nil
}

func (f *fakeSettings) Save(s *domain.AppSettings) error {
	f.settings = *s
	return nil
}

func (f *fakeSettings) Set(key, value string) error {
	if key == "bogus" {
		return domain.ErrInvalidInput
	}
	f.set[key] = value
	return nil
}

func (f *fakeSettings) Validate() error                 { return f.validateErr }
func (f *fakeSettings) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }
func (f *fakeSettings) ValidateEmbeddingConfig() error  { return nil }
func (f *fakeSettings) ValidateLLMConfig() error        { return f.pingErr }

// ==================== Records ====================

type fakeReader struct {
	laws   map[string][]domain.LawRecord
	bundle domain.ProjectBundle
	paths  [][3]string
	err    error
}

func (r *fakeReader) ReadLawsFile(path string) ([]domain.LawRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.laws[path], nil
}

func (r *fakeReader) ReadProject(featuresPath, termsPath, compliancePath string) (domain.ProjectBundle, error) {
	r.paths = append(r.paths, [3]string{featuresPath, termsPath, compliancePath})
	return r.bundle, r.err
}

func law(id, title string) domain.LawRecord {
	return domain.LawRecord{ID: id, ProvisionTitle: title, ProvisionBody: title + " body"}
}
