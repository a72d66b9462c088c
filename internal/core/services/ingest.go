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

// Ingest defaults.
const (
	DefaultBatchSize  = 2
	DefaultBatchDelay = 2 * time.Second
)

// BatchError reports the chunk that failed during batched ingestion.
// Nothing is persisted or left in memory when it is returned.
type BatchError struct {
	// Index is the zero-based chunk index.
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("ingest batch %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// BatchIngestor adds documents to a corpus store in paced chunks and
// persists once at the end.
type BatchIngestor struct {
	// sleep waits between chunks; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBatchIngestor creates a batch ingestor.
func NewBatchIngestor() *BatchIngestor {
	return &BatchIngestor{sleep: sleepCtx}
}

// Ingest adds docs in chunks of batchSize, waiting delay between chunks,
// then saves once. A non-positive batchSize uses DefaultBatchSize.
//
// On any failure the chunks already added are dropped again, so the store
// holds exactly what it held before the call.
func (b *BatchIngestor) Ingest(
	ctx context.Context,
	store driven.CorpusStore,
	docs []domain.Document,
	batchSize int,
	delay time.Duration,
) error {
	if len(docs) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	chunks := (len(docs) + batchSize - 1) / batchSize
	logger.Debug("ingesting %d documents into %s in %d batches", len(docs), store.Dir(), chunks)

	base := store.Len()
	rollback := func(err error) error {
		if rbErr := store.Truncate(ctx, base); rbErr != nil {
			logger.Error("rolling back %s to %d documents: %v", store.Dir(), base, rbErr)
			return errors.Join(err, rbErr)
		}
		return err
	}

	for i := 0; i < chunks; i++ {
		start := i * batchSize
		end := min(start+batchSize, len(docs))

		if err := store.Add(ctx, docs[start:end]); err != nil {
			return rollback(&BatchError{Index: i, Err: err})
		}
		logger.Debug("batch %d/%d added (%d documents)", i+1, chunks, end-start)

		if i < chunks-1 && delay > 0 {
			if err := b.sleep(ctx, delay); err != nil {
				return rollback(fmt.Errorf("ingest stopped after batch %d: %w", i, err))
			}
		}
	}

	if err := store.Save(ctx); err != nil {
		return rollback(fmt.Errorf("save store: %w", err))
	}
	logger.Info("ingested %d documents into %s (%d total)", len(docs), store.Dir(), store.Len())
	return nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
