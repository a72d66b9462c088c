package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

func newTestCompliance(llm *fakeLLM) (*ComplianceService, *fakeStore, *fakeStore) {
	laws, features := newFakeStore("laws"), newFakeStore("features")
	settings := domain.DefaultAppSettings()
	settings.Ingest.Delay = 0

	cfg := ComplianceConfig{Laws: laws, Features: features, Prompts: testPrompts(), Settings: settings}
	if llm != nil {
		cfg.LLM = llm
	}
	return NewComplianceService(cfg), laws, features
}

var atlas = domain.ProjectBundle{
	Features: []domain.FeatureRecord{
		{ID: "F1", FeatureID: "FEAT-1", FeatureTitle: "Geo feed", FeatureDescription: "Shows nearby posts", ProjectName: "Atlas"},
		{ID: "F2", FeatureID: "FEAT-2", FeatureTitle: "Age gate", FeatureDescription: "Asks for birth date", ProjectName: "Atlas"},
	},
	Terms:      []domain.TermRecord{{VariableName: "geo_ctx", VariableDescription: "Location context"}},
	Compliance: []domain.ComplianceRecord{{ComplianceTitle: "COPPA", ComplianceDescription: "Parental consent"}},
}

func TestComplianceService_IngestLaws(t *testing.T) {
	svc, laws, _ := newTestCompliance(nil)

	n, err := svc.IngestLaws(context.Background(), []domain.LawRecord{storedLaw, otherLaw, amendment})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, laws.Len())
	assert.Equal(t, 2, laws.addCalls)
	assert.Equal(t, 1, laws.saves)

	docs, _ := laws.Documents(context.Background())
	assert.Equal(t, "L1", docs[0].ID())
	assert.Equal(t, "GDPR", docs[0].Metadata[domain.FieldLawCode])
}

func TestComplianceService_IngestFeatures(t *testing.T) {
	svc, laws, features := newTestCompliance(nil)

	n, err := svc.IngestFeatures(context.Background(), atlas)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, features.Len())
	assert.Zero(t, laws.Len())

	docs, _ := features.Documents(context.Background())
	assert.Contains(t, docs[0].Content, "--- Project Data Dictionary ---")
}

func TestComplianceService_CheckFeatures(t *testing.T) {
	llm := newFakeLLM(emptyProvisions)
	svc, laws, _ := newTestCompliance(llm)
	laws.hits["Geo feed - Shows nearby posts"] = []domain.ScoredDocument{hit(0, 0.8, lawDoc("L1", "GDPR", "law body"))}

	result, err := svc.CheckFeatures(context.Background(), atlas)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Equal(t, domain.DirectionFeatureToLaw, result.Direction)

	assert.Equal(t, []string{"Geo feed - Shows nearby posts", "Age gate - Asks for birth date"}, laws.queries)
	require.Equal(t, 1, llm.calls())
	assert.Contains(t, llm.prompts[0], "<features>\n0. Geo feed - Shows nearby posts\n1. Age gate - Asks for birth date\n</features>")
	assert.Contains(t, llm.prompts[0], "ID: GDPR")
}

func TestComplianceService_CheckFeaturesDimensionMismatch(t *testing.T) {
	llm := newFakeLLM(emptyProvisions)
	svc, laws, _ := newTestCompliance(llm)
	laws.queryErr["Geo feed - Shows nearby posts"] = &domain.DimensionMismatchError{Expected: 3072, Got: 768}

	result, err := svc.CheckFeatures(context.Background(), atlas)

	var dm *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 768, dm.Got)
	assert.Nil(t, result)
	assert.Zero(t, llm.calls())
}

func TestComplianceService_CheckWithoutEvidenceSkipsModel(t *testing.T) {
	llm := newFakeLLM()
	svc, _, _ := newTestCompliance(llm)

	result, err := svc.CheckLaws(context.Background(), []domain.LawRecord{amendment})
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Equal(t, ItemsFeatures, result.ItemsKey)
	assert.Zero(t, llm.calls())
}

func TestComplianceService_CheckLaws(t *testing.T) {
	llm := newFakeLLM(`{"features": [{"feature_id": "FEAT-2", "feature_title": "Age gate",
		"feature_description": "Asks for birth date", "feature_type": "N/A", "project_name": "Atlas",
		"project_id": "N/A", "reference_file": "feature-Atlas.jsonl", "reasoning": "threshold moved to 13"}]}`)
	svc, _, features := newTestCompliance(llm)
	features.hits["Art 8 - Parental consent under 13"] = []domain.ScoredDocument{hit(1, 0.75, featureDoc("F2", "FEAT-2", "age gate"))}

	result, err := svc.CheckLaws(context.Background(), []domain.LawRecord{amendment})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "FEAT-2", result.Items[0].Get(domain.FieldFeatureID))
	assert.Contains(t, llm.prompts[0], "<law>\n0. Art 8 - Parental consent under 13\n</law>")
}

func TestComplianceService_UpdateLaw(t *testing.T) {
	svc, laws, _ := newTestCompliance(newFakeLLM())

	outcome, err := svc.UpdateLaw(context.Background(), storedLaw)
	require.NoError(t, err)
	assert.False(t, outcome.Replaced)
	assert.Equal(t, 1, laws.Len())
}

func TestComplianceService_Inspect(t *testing.T) {
	svc, laws, _ := newTestCompliance(nil)
	require.NoError(t, laws.Add(context.Background(), docs(4)))

	all, err := svc.Inspect(context.Background(), domain.CorpusLaw, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	some, err := svc.Inspect(context.Background(), domain.CorpusLaw, 2)
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, int64(1), some[1].Slot)

	none, err := svc.Inspect(context.Background(), domain.CorpusFeature, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.Inspect(context.Background(), domain.Corpus("terms"), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
