package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// Violation checks and law updates are disabled without it.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// No corpus store can be opened without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrStoreClosed indicates an operation on a closed corpus store.
	ErrStoreClosed = errors.New("store closed")

	// ErrQueueClosed indicates a task was submitted after the queue shut down.
	ErrQueueClosed = errors.New("queue closed")

	// ErrRateLimited indicates a provider rejected a call for exceeding its quota (HTTP 429).
	ErrRateLimited = errors.New("rate limited")

	// Pipeline Errors.

	// ErrMalformedRecord matches any *MalformedRecordError.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrDimensionMismatch matches any *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrStoreCorrupt matches any *StoreCorruptError.
	ErrStoreCorrupt = errors.New("store corrupt")

	// ErrProvider matches any *ProviderError.
	ErrProvider = errors.New("provider error")

	// ErrAnalysisFailure matches any *AnalysisFailure.
	ErrAnalysisFailure = errors.New("analysis failure")
)

// MalformedRecordError reports an input record that could not be decoded.
// It is fatal to the ingestion call that produced it.
type MalformedRecordError struct {
	Source string
	Line   int
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("malformed record at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed record at %s:%d: %v", e.Source, e.Line, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMalformedRecord.
func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// DimensionMismatchError reports an embedding whose length differs from the
// dimension fixed at store creation.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: store expects %d, got %d", e.Expected, e.Got)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// StoreCorruptError reports a persisted store that exists but cannot be loaded.
// Recovery is manual: restore the directory or delete it and re-ingest.
type StoreCorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *StoreCorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s is corrupt: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("store %s is corrupt: %s", e.Path, e.Reason)
}

func (e *StoreCorruptError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStoreCorrupt.
func (e *StoreCorruptError) Is(target error) bool { return target == ErrStoreCorrupt }

// ProviderError reports a failed embedding or model call (network, quota).
// Callers may retry; the core never does.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is reports whether target is ErrProvider.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// AnalysisFailure reports a model response that did not parse or validate.
// Raw holds the unmodified response text for diagnostics. An AnalysisFailure
// means "no usable answer" and is never the same as "no violations found".
type AnalysisFailure struct {
	Reason string
	Raw    string
	Err    error
}

func (e *AnalysisFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis failed: %s: %v", e.Reason, e.Err)
	}
	return "analysis failed: " + e.Reason
}

func (e *AnalysisFailure) Unwrap() error { return e.Err }

// Is reports whether target is ErrAnalysisFailure.
func (e *AnalysisFailure) Is(target error) bool { return target == ErrAnalysisFailure }
