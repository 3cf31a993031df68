// Package sqlite persists training examples in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/pkg/types"
)

// ExampleRepository implements storage.ExampleRepository using SQLite.
type ExampleRepository struct {
	db *sql.DB
}

// NewExampleRepository opens (or creates) the database at dsn. If the first
// open fails on stale WAL files that no other process holds, they are
// removed and the open is retried once.
func NewExampleRepository(dsn string) (*ExampleRepository, error) {
	repo, err := openExampleRepository(dsn)
	if err == nil {
		return repo, nil
	}
	if !recoverStaleWAL(dsn, err) {
		return nil, err
	}

	repo, retryErr := openExampleRepository(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dsn)
	return repo, nil
}

func openExampleRepository(dsn string) (*ExampleRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serialises writes; WAL keeps reads from blocking them.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &ExampleRepository{db: db}, nil
}

// Save stores one example. Saving an ID that already exists is a no-op.
func (r *ExampleRepository) Save(ctx context.Context, example types.Example) error {
	if example.ID == "" {
		return fmt.Errorf("%w: example ID is required", storage.ErrInvalidInput)
	}
	if example.Label == "" {
		return fmt.Errorf("%w: example label is required", storage.ErrInvalidInput)
	}
	if len(example.Embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	createdAt := example.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO examples (id, label, embedding, dimension, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		example.ID,
		string(example.Label),
		serializeEmbedding(example.Embedding),
		len(example.Embedding),
		nullableString(example.SessionID),
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save example: %w", err)
	}
	return nil
}

// Load returns every example in insertion order.
func (r *ExampleRepository) Load(ctx context.Context) ([]types.Example, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, embedding, dimension, session_id, created_at
		FROM examples
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}
	defer rows.Close()

	var examples []types.Example
	for rows.Next() {
		var (
			ex        types.Example
			label     string
			blob      []byte
			dimension int
			sessionID sql.NullString
		)
		if err := rows.Scan(&ex.ID, &label, &blob, &dimension, &sessionID, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan example: %w", err)
		}

		embedding, err := deserializeEmbedding(blob, dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize embedding of %s: %w", ex.ID, err)
		}
		ex.Label = types.Label(label)
		ex.Embedding = embedding
		ex.SessionID = sessionID.String
		examples = append(examples, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate examples: %w", err)
	}

	return examples, nil
}

// Delete removes every example of label.
func (r *ExampleRepository) Delete(ctx context.Context, label types.Label) error {
	if label == "" {
		return fmt.Errorf("%w: label is required", storage.ErrInvalidInput)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM examples WHERE label = ?`, string(label)); err != nil {
		return fmt.Errorf("failed to delete examples: %w", err)
	}
	return nil
}

// DeleteAll removes every example.
func (r *ExampleRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM examples`); err != nil {
		return fmt.Errorf("failed to delete examples: %w", err)
	}
	return nil
}

// Count returns the number of persisted examples per label.
func (r *ExampleRepository) Count(ctx context.Context) (map[types.Label]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT label, COUNT(*) FROM examples GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to count examples: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.Label]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[types.Label(label)] = n
	}
	return counts, rows.Err()
}

// Close checkpoints the WAL so the next open starts from a clean database
// file, then closes it.
func (r *ExampleRepository) Close() error {
	if r.db == nil {
		return nil
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}

	return r.db.Close()
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ storage.ExampleRepository = (*ExampleRepository)(nil)
