package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

func TestWatch_QueuesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	lawPath := filepath.Join(dir, "law-eu.jsonl")
	featurePath := filepath.Join(dir, "feature-app.jsonl")
	compliancePath := filepath.Join(dir, "compliance-app.jsonl")
	for _, p := range []string{lawPath, featurePath, compliancePath, filepath.Join(dir, "notes.txt")} {
		require.NoError(t, os.WriteFile(p, []byte("{}\n"), 0600))
	}

	fc := &fakeCompliance{}
	fq := &fakeQueue{}
	reader := &fakeReader{
		laws:   map[string][]domain.LawRecord{lawPath: {law("L1", "Age")}},
		bundle: domain.ProjectBundle{Features: []domain.FeatureRecord{{ID: "F1"}}},
	}
	withServices(t, fc, fq, nil, reader)

	out, err := execute(t, "watch", dir, "--existing", "--timeout", "200ms")

	require.NoError(t, err)
	assert.Equal(t, []string{"ingest feature feature-app.jsonl", "ingest law law-eu.jsonl"}, fq.submitted())
	assert.Contains(t, out, "Watching "+dir)
	assert.Len(t, fc.laws, 1)
	require.Len(t, fc.bundles, 1)
	assert.Equal(t, [][3]string{{featurePath, "", compliancePath}}, reader.paths)
}

func TestWatch_FailedReadFailsTaskNotWatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "law-bad.jsonl"), []byte("nope\n"), 0600))

	fc := &fakeCompliance{}
	fq := &fakeQueue{}
	withServices(t, fc, fq, nil, &fakeReader{err: &domain.MalformedRecordError{Line: 1}})

	_, err := execute(t, "watch", dir, "--existing", "--timeout", "100ms")

	require.NoError(t, err)
	assert.Len(t, fq.submitted(), 1)
	assert.Empty(t, fc.laws)
}

func TestWatch_MissingDirectory(t *testing.T) {
	withServices(t, &fakeCompliance{}, &fakeQueue{}, nil, &fakeReader{})

	_, err := execute(t, "watch", filepath.Join(t.TempDir(), "missing"), "--timeout", "100ms")

	assert.Error(t, err)
}
