package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
)

// ==================== Document Store ====================

// documentStore implements driven.SnapshotStore.
type documentStore struct {
	store *Store
}

var _ driven.SnapshotStore = (*documentStore)(nil)

const upsertDocument = `
	INSERT INTO documents (slot, doc_id, content, metadata)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(slot) DO UPDATE SET
		doc_id = excluded.doc_id,
		content = excluded.content,
		metadata = excluded.metadata
`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Put stores or overwrites the document in a slot.
func (s *documentStore) Put(ctx context.Context, slot int64, doc domain.Document) error {
	return putDocument(ctx, s.store.db, slot, doc)
}

func putDocument(ctx context.Context, db execer, slot int64, doc domain.Document) error {
	if doc.ID() == "" {
		return fmt.Errorf("document in slot %d has no id: %w", slot, domain.ErrInvalidInput)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	if _, err := db.ExecContext(ctx, upsertDocument, slot, doc.ID(), doc.Content, string(metadataJSON)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.ID(), domain.ErrAlreadyExists)
		}
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// Get retrieves the document in a slot.
func (s *documentStore) Get(ctx context.Context, slot int64) (domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT slot, content, metadata FROM documents WHERE slot = ?
	`, slot)

	stored, err := scanDocument(row)
	if err != nil {
		return domain.Document{}, err
	}
	return stored.Document, nil
}

// FindSlot returns the slot holding the document with the given metadata id.
func (s *documentStore) FindSlot(ctx context.Context, id string) (int64, error) {
	var slot int64
	err := s.store.db.QueryRowContext(ctx, "SELECT slot FROM documents WHERE doc_id = ?", id).Scan(&slot)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("finding document %s: %w", id, err)
	}
	return slot, nil
}

// List returns all documents ordered by slot.
func (s *documentStore) List(ctx context.Context) ([]domain.StoredDocument, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT slot, content, metadata FROM documents ORDER BY slot
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.StoredDocument //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (s *documentStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// ReplaceAll swaps the table contents for docs in one transaction.
// On error the previous contents are kept.
func (s *documentStore) ReplaceAll(ctx context.Context, docs []domain.StoredDocument) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}

	for _, doc := range docs {
		if err := putDocument(ctx, tx, doc.Slot, doc.Document); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

type scanner interface {
	Scan(dest ...any) error
}

// scanDocument scans one documents row from *sql.Row or *sql.Rows.
func scanDocument(row scanner) (domain.StoredDocument, error) {
	var doc domain.StoredDocument
	var metadataJSON string

	if err := row.Scan(&doc.Slot, &doc.Content, &metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, domain.ErrNotFound
		}
		return doc, fmt.Errorf("scanning document: %w", err)
	}

	if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
		return doc, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	return doc, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
