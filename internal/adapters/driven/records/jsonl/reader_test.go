package jsonl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func TestReadLaws_FlatLines(t *testing.T) {
	input := `{"id":"L1","provision_title":"Age checks","provision_body":"Verify age.","law_code":"SB-976","country":"United States","region":"California","reference_file":"sb976.pdf"}

{"provision_title":"Curfew","provision_body":"No notifications at night.","law_code":"SB-976"}
`
	laws, err := NewReader().ReadLaws(strings.NewReader(input), "laws.jsonl")
	require.NoError(t, err)
	require.Len(t, laws, 2)

	assert.Equal(t, "L1", laws[0].ID)
	assert.Equal(t, "sb976.pdf", laws[0].ReferenceFile)
	assert.Equal(t, "California", laws[0].Region)

	_, err = uuid.Parse(laws[1].ID)
	assert.NoError(t, err, "missing id is stamped with a uuid")
	assert.Equal(t, "laws.jsonl", laws[1].ReferenceFile)
}

func TestReadLaws_NestedDocumentIsFlattened(t *testing.T) {
	input := `{"country":"European Union","region":"n/a","relevant_labels":"minors, privacy","law_code":"DSA","provisions":[` +
		`{"provision_title":"Art. 28","provision_body":"Protect minors.","provision_code":"28"},` +
		`{"provision_title":"Art. 34","provision_body":"Assess risks.","provision_code":"34"}]}`

	r := NewReader()
	r.newID = sequentialIDs()

	laws, err := r.ReadLaws(strings.NewReader(input), "dsa.txt")
	require.NoError(t, err)
	require.Len(t, laws, 2)

	assert.Equal(t, domain.LawRecord{
		ID:             "gen-2",
		ProvisionTitle: "Art. 34",
		ProvisionBody:  "Assess risks.",
		ProvisionCode:  "34",
		LawCode:        "DSA",
		Country:        "European Union",
		Region:         "n/a",
		RelevantLabels: "minors, privacy",
		ReferenceFile:  "dsa.txt",
	}, laws[1])
	assert.Equal(t, "gen-1", laws[0].ID)
}

func TestFlattenLawDocument_IsPure(t *testing.T) {
	doc := LawDocument{
		LawCode:       "COPPA",
		ReferenceFile: "coppa.pdf",
		Provisions: []provisionLine{
			{ProvisionTitle: "A", ProvisionBody: "a"},
		},
	}

	first := FlattenLawDocument(doc, "ignored", sequentialIDs())
	second := FlattenLawDocument(doc, "ignored", sequentialIDs())
	assert.Equal(t, first, second)
	assert.Equal(t, "coppa.pdf", first[0].ReferenceFile)
	assert.Empty(t, FlattenLawDocument(LawDocument{}, "x", sequentialIDs()))
}

func TestReadLaws_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		line    int
		message string
	}{
		{
			name:  "invalid json",
			input: "{\"provision_title\":\"A\",\"provision_body\":\"a\"}\n{not json}\n",
			line:  2,
		},
		{
			name:    "missing body",
			input:   `{"provision_title":"A"}`,
			line:    1,
			message: "missing required field provision_body",
		},
		{
			name:    "blank lines still count",
			input:   "\n\n{\"provision_body\":\"b\"}\n",
			line:    3,
			message: "missing required field provision_title",
		},
		{
			name:    "empty provisions",
			input:   `{"law_code":"X","provisions":[]}`,
			line:    1,
			message: "provisions must have at least 1 entries",
		},
		{
			name:    "nested provision missing title",
			input:   `{"law_code":"X","provisions":[{"provision_body":"b"}]}`,
			line:    1,
			message: "provisions[0].provision_title",
		},
		{
			name:  "array line",
			input: `[1,2]`,
			line:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader().ReadLaws(strings.NewReader(tt.input), "bad.jsonl")
			require.Error(t, err)

			var mr *domain.MalformedRecordError
			require.True(t, errors.As(err, &mr), "got %T", err)
			assert.Equal(t, "bad.jsonl", mr.Source)
			assert.Equal(t, tt.line, mr.Line)
			assert.ErrorIs(t, err, domain.ErrMalformedRecord)
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestReadFeatures(t *testing.T) {
	input := `{"feature_id":"F-7","feature_title":"Curfew mode","feature_description":"Locks the app at night","feature_type":"safety","project_name":"Teen","project_id":"P1"}
{"id":"F8","feature_title":"Feed","feature_description":"Ranked feed","reference_file":"spec.pdf"}`

	r := NewReader()
	r.newID = sequentialIDs()

	features, err := r.ReadFeatures(strings.NewReader(input), "features.jsonl")
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Equal(t, "gen-1", features[0].ID)
	assert.Equal(t, "F-7", features[0].FeatureID)
	assert.Equal(t, "features.jsonl", features[0].ReferenceFile)
	assert.Equal(t, "F8", features[1].ID)
	assert.Equal(t, "spec.pdf", features[1].ReferenceFile)
}

func TestReadFeatures_MissingDescription(t *testing.T) {
	_, err := NewReader().ReadFeatures(strings.NewReader(`{"feature_title":"X"}`), "f.jsonl")
	assert.ErrorIs(t, err, domain.ErrMalformedRecord)
	assert.ErrorContains(t, err, "feature_description")
}

func TestReadTermsAndCompliance(t *testing.T) {
	r := NewReader()

	terms, err := r.ReadTerms(strings.NewReader(`{"variable_name":"uid","variable_description":"User id"}`+"\n"+`{"variable_name":"asl"}`), "terms.jsonl")
	require.NoError(t, err)
	assert.Equal(t, []domain.TermRecord{
		{VariableName: "uid", VariableDescription: "User id"},
		{VariableName: "asl"},
	}, terms)

	rules, err := r.ReadCompliance(strings.NewReader(`{"compliance_title":"GDPR","compliance_description":"Consent"}`), "c.jsonl")
	require.NoError(t, err)
	assert.Equal(t, []domain.ComplianceRecord{{ComplianceTitle: "GDPR", ComplianceDescription: "Consent"}}, rules)

	_, err = r.ReadTerms(strings.NewReader(`{"variable_description":"orphan"}`), "terms.jsonl")
	assert.ErrorIs(t, err, domain.ErrMalformedRecord)
}

func TestReadProject(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0600))
		return path
	}

	features := write("feature-teen.jsonl", `{"feature_title":"Curfew","feature_description":"Night lock"}`)
	terms := write("terms.jsonl", `{"variable_name":"NR","variable_description":"Not recommended"}`)

	bundle, err := NewReader().ReadProject(features, terms, "")
	require.NoError(t, err)
	require.Len(t, bundle.Features, 1)
	assert.Equal(t, "feature-teen.jsonl", bundle.Features[0].ReferenceFile)
	assert.Len(t, bundle.Terms, 1)
	assert.Empty(t, bundle.Compliance)

	_, err = NewReader().ReadProject(filepath.Join(dir, "missing.jsonl"), "", "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadLawsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "law-sb976.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"provision_title":"A","provision_body":"a"}`), 0600))

	laws, err := NewReader().ReadLawsFile(path)
	require.NoError(t, err)
	require.Len(t, laws, 1)
	assert.Equal(t, "law-sb976.jsonl", laws[0].ReferenceFile)
}
