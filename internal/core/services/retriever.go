package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
	"github.com/custodia-labs/complyref/internal/logger"
)

// QueryBuilder turns a record into retrieval query text.
type QueryBuilder func(domain.Record) string

// LawQuery renders a law as "provision_title - provision_body".
func LawQuery(r domain.Record) string {
	return domain.FieldOrNA(r, domain.FieldProvisionTitle) + " - " + domain.FieldOrNA(r, domain.FieldProvisionBody)
}

// FeatureQuery renders a feature as "feature_title - feature_description".
func FeatureQuery(r domain.Record) string {
	return domain.FieldOrNA(r, domain.FieldFeatureTitle) + " - " + domain.FieldOrNA(r, domain.FieldFeatureDescription)
}

// DefaultQuery picks the title/description query for the record's kind.
func DefaultQuery(r domain.Record) string {
	if r.Kind() == domain.RecordKindLaw {
		return LawQuery(r)
	}
	return FeatureQuery(r)
}

// RetrieverOptions configures cross-corpus retrieval.
type RetrieverOptions struct {
	// Threshold is the minimum relevance score. Zero uses domain.RetrievalThreshold.
	Threshold float64

	// BatchSize queries run between Delay pauses. Zero disables pacing.
	BatchSize int
	Delay     time.Duration
}

// CrossRetriever gathers evidence for a set of records from the other corpus.
type CrossRetriever struct {
	opts  RetrieverOptions
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCrossRetriever creates a retriever.
func NewCrossRetriever(opts RetrieverOptions) *CrossRetriever {
	if opts.Threshold == 0 {
		opts.Threshold = domain.RetrievalThreshold
	}
	return &CrossRetriever{opts: opts, sleep: sleepCtx}
}

// Retrieve runs one query per record against store and returns the
// deduplicated hits in first-seen order. A query the provider fails is
// logged and skipped. Cancellation, a closed store or an embedding of the
// wrong dimension aborts.
func (c *CrossRetriever) Retrieve(
	ctx context.Context,
	store driven.CorpusStore,
	records []domain.Record,
	build QueryBuilder,
) ([]domain.Document, error) {
	if build == nil {
		build = DefaultQuery
	}

	seen := make(map[string]struct{})
	var evidence []domain.Document

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.opts.BatchSize > 0 && i > 0 && i%c.opts.BatchSize == 0 && c.opts.Delay > 0 {
			if err := c.sleep(ctx, c.opts.Delay); err != nil {
				return nil, err
			}
		}

		query := build(rec)
		hits, err := store.Query(ctx, query, 0, c.opts.Threshold)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if fatalQueryError(err) {
				return nil, fmt.Errorf("query %d against %s: %w", i, store.Dir(), err)
			}
			logger.Warn("retrieval query %d skipped: %v", i, err)
			continue
		}
		logger.Debug("query %d matched %d documents in %s", i, len(hits), store.Dir())

		for _, hit := range hits {
			key := hit.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			evidence = append(evidence, hit.Document)
		}
	}

	return evidence, nil
}

func fatalQueryError(err error) bool {
	var dm *domain.DimensionMismatchError
	return errors.As(err, &dm) || errors.Is(err, domain.ErrStoreClosed)
}
