// Package storage provides the storage interfaces for the notouch device.
//
// ExampleStore is the in-process set of labeled embeddings the classifier
// reads from. ExampleRepository is the optional durable copy of that set so
// training survives restarts. The two are kept separate: classification only
// ever touches the in-process store.
package storage

import (
	"context"
	"iter"

	"github.com/scrypster/notouch/pkg/types"
)

// ExampleStore holds, per label, the embeddings collected during training.
// Implementations must give every reader a consistent snapshot: an iteration
// started by AllExamples never observes a concurrent Add or Clear.
type ExampleStore interface {
	// Add appends an embedding under label and returns the stored example.
	// Returns ErrDimensionMismatch if the embedding length differs from the
	// examples already stored, ErrInvalidInput if the embedding is empty.
	Add(label types.Label, embedding types.Embedding) (types.Example, error)

	// Insert stores a fully formed example, keeping its ID, session and
	// timestamp. Used by training sessions and when restoring persisted
	// examples. Same validation as Add.
	Insert(example types.Example) error

	// Clear removes all examples for one label. No-op if none exist.
	Clear(label types.Label)

	// ClearAll removes every example.
	ClearAll()

	// IsEmpty reports whether no label has any example.
	IsEmpty() bool

	// Len returns the total number of examples across labels.
	Len() int

	// Dimension returns the embedding dimension of stored examples,
	// or 0 when the store is empty.
	Dimension() int

	// Counts returns the number of examples per label.
	Counts() map[types.Label]int

	// AllExamples yields (label, embedding) pairs in insertion order.
	// The sequence is finite and may be iterated any number of times.
	AllExamples() iter.Seq2[types.Label, types.Embedding]
}

// ExampleRepository persists training examples.
type ExampleRepository interface {
	// Save stores a single example. Saving an existing ID is a no-op.
	Save(ctx context.Context, example types.Example) error

	// Load returns every persisted example in insertion order.
	Load(ctx context.Context) ([]types.Example, error)

	// Delete removes all examples for a label.
	Delete(ctx context.Context, label types.Label) error

	// DeleteAll removes every example.
	DeleteAll(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
