// Package sqlite provides SQLite-backed implementations of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database file serves:
//
//   - DocumentStore / SnapshotStore: the slot-to-document table of a corpus store
//   - TaskStore: the journal of background ingest tasks
//
// Each corpus store directory holds its own docstore.db opened with Open; the
// task journal lives in the data directory opened with NewStore.
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory and recorded in schema_migrations.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses a single connection in WAL mode.
package sqlite
