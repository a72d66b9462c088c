package driving

import (
	"context"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// ComplianceService is the cross-reference engine as seen by callers.
type ComplianceService interface {
	// IngestLaws batch-ingests law records into the law store.
	// It returns the number of documents committed.
	IngestLaws(ctx context.Context, laws []domain.LawRecord) (int, error)

	// IngestFeatures batch-ingests a project's features into the feature store.
	IngestFeatures(ctx context.Context, bundle domain.ProjectBundle) (int, error)

	// CheckFeatures checks new features against the law store.
	// A *domain.AnalysisFailure or *domain.ProviderError means no usable answer.
	CheckFeatures(ctx context.Context, bundle domain.ProjectBundle) (*domain.ViolationResult, error)

	// CheckLaws checks new laws against the feature store.
	CheckLaws(ctx context.Context, laws []domain.LawRecord) (*domain.ViolationResult, error)

	// UpdateLaw replaces the stored near-duplicate of law, or inserts it.
	UpdateLaw(ctx context.Context, law domain.LawRecord) (*domain.UpdateOutcome, error)

	// Inspect lists stored documents of a corpus, at most limit (limit <= 0 means all).
	Inspect(ctx context.Context, corpus domain.Corpus, limit int) ([]domain.StoredDocument, error)
}
