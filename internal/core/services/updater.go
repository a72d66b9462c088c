package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
	"github.com/custodia-labs/complyref/internal/logger"
)

// UpdaterOptions configures law upsert-by-similarity.
type UpdaterOptions struct {
	// Threshold is the minimum score for a stored law to be a candidate.
	// Zero uses domain.ReplaceThreshold.
	Threshold float64

	// InsertOnUncertain inserts the law as new when the model answer cannot
	// be resolved, instead of returning the *domain.AnalysisFailure.
	InsertOnUncertain bool
}

// StoreUpdater replaces a stored law with a new version, or inserts it
// when no stored law is close enough.
type StoreUpdater struct {
	laws     driven.CorpusStore
	analyzer *ViolationAnalyzer
	opts     UpdaterOptions
}

// NewStoreUpdater creates an updater over the law store.
func NewStoreUpdater(laws driven.CorpusStore, analyzer *ViolationAnalyzer, opts UpdaterOptions) *StoreUpdater {
	if opts.Threshold == 0 {
		opts.Threshold = domain.ReplaceThreshold
	}
	return &StoreUpdater{laws: laws, analyzer: analyzer, opts: opts}
}

// Update resolves and applies the update for one law.
func (u *StoreUpdater) Update(ctx context.Context, law domain.LawRecord) (*domain.UpdateOutcome, error) {
	doc, err := domain.LawDocument(law)
	if err != nil {
		return nil, err
	}

	decision, candidates, err := u.Decide(ctx, doc)
	if err != nil {
		return nil, err
	}

	replaced, err := u.laws.ReplaceOrInsert(ctx, doc, decision.MatchID)
	if err != nil {
		return nil, fmt.Errorf("apply update: %w", err)
	}

	if replaced {
		logger.Info("law %s replaced %s", doc.ID(), decision.MatchID)
	} else {
		logger.Info("law %s inserted as new", doc.ID())
	}

	return &domain.UpdateOutcome{
		Decision:   decision,
		Candidates: candidates,
		Replaced:   replaced,
		DocumentID: doc.ID(),
		StoreSize:  u.laws.Len(),
	}, nil
}

// Decide searches for near-duplicates of doc and, when there are any, asks
// the model which one doc supersedes. It returns the decision and the
// number of candidates considered.
func (u *StoreUpdater) Decide(ctx context.Context, doc domain.Document) (domain.UpdateDecision, int, error) {
	hits, err := u.laws.Query(ctx, doc.Content, 0, u.opts.Threshold)
	if err != nil {
		return domain.UpdateDecision{}, 0, fmt.Errorf("search candidates: %w", err)
	}
	if len(hits) == 0 {
		logger.Debug("no candidates above %.2f for %s", u.opts.Threshold, doc.ID())
		return domain.NoMatch(), 0, nil
	}

	candidates := make([]domain.Document, len(hits))
	ids := make(map[string]struct{}, len(hits))
	for i, h := range hits {
		candidates[i] = h.Document
		ids[h.ID()] = struct{}{}
	}

	raw, err := u.analyzer.ask(ctx, driven.PromptLawUpdate, RenderCandidates(candidates), doc.Content, UpdateSchema)
	if err != nil {
		return domain.UpdateDecision{}, len(hits), err
	}

	decision, err := resolveMatch(raw, ids)
	if err != nil {
		var failure *domain.AnalysisFailure
		if u.opts.InsertOnUncertain && errors.As(err, &failure) {
			logger.Warn("update for %s undecided (%s), inserting as new", doc.ID(), failure.Reason)
			return domain.NoMatch(), len(hits), nil
		}
		return domain.UpdateDecision{}, len(hits), err
	}
	return decision, len(hits), nil
}

// resolveMatch maps a model answer to a decision. The first item naming a
// candidate wins.
func resolveMatch(raw string, candidates map[string]struct{}) (domain.UpdateDecision, error) {
	items, err := ParseResponse(raw, UpdateSchema)
	if err != nil {
		return domain.UpdateDecision{}, err
	}
	if len(items) == 0 {
		return domain.NoMatch(), nil
	}
	if len(items) > 1 {
		logger.Warn("model named %d matches, expected at most one", len(items))
	}

	for _, item := range items {
		id := item.Fields[domain.FieldID]
		if _, ok := candidates[id]; ok {
			return domain.Matched(id), nil
		}
	}
	return domain.UpdateDecision{}, &domain.AnalysisFailure{
		Reason: fmt.Sprintf("model named unknown law id %q", items[0].Fields[domain.FieldID]),
		Raw:    raw,
	}
}

// RenderCandidates renders update candidates with their ids, which the
// model must echo back.
func RenderCandidates(docs []domain.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		md := domain.Fields(d.Metadata)
		parts[i] = fmt.Sprintf("ID: %s\nLaw Code: %s\nContent: %s",
			domain.FieldOrNA(md, domain.FieldID), domain.FieldOrNA(md, domain.FieldLawCode), d.Content)
	}
	return strings.Join(parts, "\n\n")
}
