package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
	"github.com/custodia-labs/complyref/internal/core/ports/driving"
	"github.com/custodia-labs/complyref/internal/logger"
)

// Ensure ComplianceService implements the interface.
var _ driving.ComplianceService = (*ComplianceService)(nil)

// ComplianceConfig wires a ComplianceService.
type ComplianceConfig struct {
	Laws     driven.CorpusStore
	Features driven.CorpusStore

	// LLM may be nil. Ingestion and inspection still work without it.
	LLM     driven.LLMService
	Prompts driven.PromptStore

	Settings domain.AppSettings
}

// ComplianceService composes ingestion, retrieval, analysis and updates
// over the law and feature stores.
type ComplianceService struct {
	laws     driven.CorpusStore
	features driven.CorpusStore

	ingest    domain.IngestSettings
	ingestor  *BatchIngestor
	retriever *CrossRetriever
	analyzer  *ViolationAnalyzer
	updater   *StoreUpdater
}

// NewComplianceService creates the service from explicit store handles.
func NewComplianceService(cfg ComplianceConfig) *ComplianceService {
	s := cfg.Settings
	analyzer := NewViolationAnalyzer(cfg.LLM, cfg.Prompts, AnalyzerOptions{
		Temperature: s.LLM.Temperature,
	})

	return &ComplianceService{
		laws:     cfg.Laws,
		features: cfg.Features,
		ingest:   s.Ingest,
		ingestor: NewBatchIngestor(),
		retriever: NewCrossRetriever(RetrieverOptions{
			Threshold: s.Retrieval.Threshold,
			BatchSize: s.Retrieval.BatchSize,
			Delay:     s.Retrieval.Delay,
		}),
		analyzer: analyzer,
		updater: NewStoreUpdater(cfg.Laws, analyzer, UpdaterOptions{
			Threshold:         s.Update.Threshold,
			InsertOnUncertain: s.Update.InsertOnUncertain,
		}),
	}
}

// ==================== Ingestion ====================

// IngestLaws batch-ingests laws into the law store.
func (s *ComplianceService) IngestLaws(ctx context.Context, laws []domain.LawRecord) (int, error) {
	logger.Section("Ingest laws")

	docs := make([]domain.Document, 0, len(laws))
	for _, law := range laws {
		doc, err := domain.LawDocument(law)
		if err != nil {
			return 0, err
		}
		docs = append(docs, doc)
	}

	if err := s.ingestor.Ingest(ctx, s.laws, docs, s.ingest.BatchSize, s.ingest.Delay); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// IngestFeatures batch-ingests a project's features into the feature store.
func (s *ComplianceService) IngestFeatures(ctx context.Context, bundle domain.ProjectBundle) (int, error) {
	logger.Section("Ingest features")

	docs := bundle.Documents()
	if err := s.ingestor.Ingest(ctx, s.features, docs, s.ingest.BatchSize, s.ingest.Delay); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// ==================== Checks ====================

// CheckFeatures checks new features against the law store.
func (s *ComplianceService) CheckFeatures(ctx context.Context, bundle domain.ProjectBundle) (*domain.ViolationResult, error) {
	logger.Section("Check features")

	evidence, err := s.retriever.Retrieve(ctx, s.laws, domain.FeaturesAsRecords(bundle.Features), FeatureQuery)
	if err != nil {
		return nil, fmt.Errorf("retrieve laws: %w", err)
	}
	logger.Debug("%d features retrieved %d law provisions", len(bundle.Features), len(evidence))

	query := AssembleFeatureRequest(bundle.Features, bundle.Terms, bundle.Compliance)
	return s.analyzer.Analyze(ctx, domain.DirectionFeatureToLaw, query, evidence)
}

// CheckLaws checks new laws against the feature store.
func (s *ComplianceService) CheckLaws(ctx context.Context, laws []domain.LawRecord) (*domain.ViolationResult, error) {
	logger.Section("Check laws")

	evidence, err := s.retriever.Retrieve(ctx, s.features, domain.LawsAsRecords(laws), LawQuery)
	if err != nil {
		return nil, fmt.Errorf("retrieve features: %w", err)
	}
	logger.Debug("%d laws retrieved %d features", len(laws), len(evidence))

	return s.analyzer.Analyze(ctx, domain.DirectionLawToFeature, AssembleLawRequest(laws), evidence)
}

// ==================== Updates ====================

// UpdateLaw replaces the stored near-duplicate of law, or inserts it.
func (s *ComplianceService) UpdateLaw(ctx context.Context, law domain.LawRecord) (*domain.UpdateOutcome, error) {
	logger.Section("Update law " + law.ID)
	return s.updater.Update(ctx, law)
}

// Inspect lists stored documents of a corpus ordered by slot.
func (s *ComplianceService) Inspect(ctx context.Context, corpus domain.Corpus, limit int) ([]domain.StoredDocument, error) {
	store, err := s.store(corpus)
	if err != nil {
		return nil, err
	}

	docs, err := store.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s documents: %w", corpus, err)
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *ComplianceService) store(corpus domain.Corpus) (driven.CorpusStore, error) {
	switch corpus {
	case domain.CorpusLaw:
		return s.laws, nil
	case domain.CorpusFeature:
		return s.features, nil
	default:
		return nil, fmt.Errorf("corpus %q: %w", corpus, domain.ErrInvalidInput)
	}
}
