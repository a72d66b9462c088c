// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - EmbeddingService: Generates vector embeddings (Gemini, OpenAI, Ollama)
//   - VectorIndex: Flat L2 nearest-neighbour index
//   - DocumentStore / SnapshotStore: Slot to document mapping (memory, SQLite)
//   - CorpusStore: One persisted, similarity-indexed corpus
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Without it, ingestion and inspection still work but
//     violation checks and law updates are disabled.
//   - PromptStore: Without it, built-in instruction templates are used.
//   - TaskStore: Without it, background tasks are not journaled.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
