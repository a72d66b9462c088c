// Package services implements the driving port interfaces.
//
// The compliance pipeline is composed here: BatchIngestor feeds corpus
// stores, CrossRetriever gathers evidence from the opposite corpus,
// ViolationAnalyzer asks the model and validates its structured answer,
// and StoreUpdater performs law upsert-by-similarity. IngestQueue runs
// ingestion as journaled background tasks with a single writer.
//
// Services depend only on ports; adapters are injected by the CLI.
package services
