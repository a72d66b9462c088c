package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

func TestQueryBuilders(t *testing.T) {
	law := domain.LawRecord{ProvisionTitle: "Art 8", ProvisionBody: "Child consent"}
	feature := domain.FeatureRecord{FeatureTitle: "Geo feed"}

	assert.Equal(t, "Art 8 - Child consent", LawQuery(law))
	assert.Equal(t, "Geo feed - N/A", FeatureQuery(feature))
	assert.Equal(t, LawQuery(law), DefaultQuery(law))
	assert.Equal(t, FeatureQuery(feature), DefaultQuery(feature))
}

func TestCrossRetriever_DeduplicatesInFirstSeenOrder(t *testing.T) {
	l1 := lawDoc("L1", "GDPR", "one")
	l2 := lawDoc("L2", "COPPA", "two")
	l3 := lawDoc("L3", "DSA", "three")

	store := newFakeStore("laws")
	store.hits["A - a"] = []domain.ScoredDocument{hit(0, 0.9, l1), hit(1, 0.7, l2)}
	store.hits["B - b"] = []domain.ScoredDocument{hit(1, 0.95, l2), hit(2, 0.8, l3), hit(0, 0.61, l1)}

	records := []domain.Record{
		domain.FeatureRecord{FeatureTitle: "A", FeatureDescription: "a"},
		domain.FeatureRecord{FeatureTitle: "B", FeatureDescription: "b"},
	}

	got, err := NewCrossRetriever(RetrieverOptions{}).Retrieve(context.Background(), store, records, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Document{l1, l2, l3}, got)
	assert.Equal(t, []string{"A - a", "B - b"}, store.queries)
}

func TestCrossRetriever_FailedQueryIsSkipped(t *testing.T) {
	l1 := lawDoc("L1", "GDPR", "one")

	store := newFakeStore("laws")
	store.queryErr["A - a"] = errors.New("embedding timeout")
	store.hits["B - b"] = []domain.ScoredDocument{hit(0, 0.9, l1)}

	records := []domain.Record{
		domain.FeatureRecord{FeatureTitle: "A", FeatureDescription: "a"},
		domain.FeatureRecord{FeatureTitle: "B", FeatureDescription: "b"},
	}

	got, err := NewCrossRetriever(RetrieverOptions{}).Retrieve(context.Background(), store, records, FeatureQuery)
	require.NoError(t, err)
	assert.Equal(t, []domain.Document{l1}, got)
}

func TestCrossRetriever_StoreFailuresAbort(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   error
	}{
		{name: "dimension mismatch", err: &domain.DimensionMismatchError{Expected: 3072, Got: 768}, is: domain.ErrDimensionMismatch},
		{name: "closed store", err: domain.ErrStoreClosed, is: domain.ErrStoreClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore("laws")
			store.queryErr["A - a"] = tt.err
			store.hits["B - b"] = []domain.ScoredDocument{hit(0, 0.9, lawDoc("L1", "GDPR", "one"))}

			records := []domain.Record{
				domain.FeatureRecord{FeatureTitle: "A", FeatureDescription: "a"},
				domain.FeatureRecord{FeatureTitle: "B", FeatureDescription: "b"},
			}

			got, err := NewCrossRetriever(RetrieverOptions{}).Retrieve(context.Background(), store, records, FeatureQuery)
			require.ErrorIs(t, err, tt.is)
			assert.Nil(t, got)
			assert.Equal(t, []string{"A - a"}, store.queries)
		})
	}
}

func TestCrossRetriever_NoHits(t *testing.T) {
	store := newFakeStore("laws")
	got, err := NewCrossRetriever(RetrieverOptions{}).Retrieve(context.Background(), store,
		[]domain.Record{domain.FeatureRecord{FeatureTitle: "A"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCrossRetriever_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newFakeStore("laws")
	_, err := NewCrossRetriever(RetrieverOptions{}).Retrieve(ctx, store,
		[]domain.Record{domain.FeatureRecord{FeatureTitle: "A"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.queries)
}

func TestCrossRetriever_Pacing(t *testing.T) {
	ns := &noSleep{}
	r := NewCrossRetriever(RetrieverOptions{BatchSize: 2, Delay: time.Second})
	r.sleep = ns.sleep

	records := make([]domain.Record, 5)
	for i := range records {
		records[i] = domain.FeatureRecord{FeatureTitle: string(rune('A' + i))}
	}

	_, err := r.Retrieve(context.Background(), newFakeStore("laws"), records, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, ns.waits)
}

func TestNewCrossRetriever_DefaultThreshold(t *testing.T) {
	r := NewCrossRetriever(RetrieverOptions{})
	assert.InDelta(t, domain.RetrievalThreshold, r.opts.Threshold, 1e-9)
}
