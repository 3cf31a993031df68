// Package memory provides the in-process implementation of storage.ExampleStore.
package memory

import (
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/pkg/types"
)

// ExampleStore implements storage.ExampleStore in memory.
//
// Examples live in one slice in global insertion order. The slice is only
// ever appended to or replaced, never edited in place, so a reader that
// captured it under the lock can iterate it without holding the lock.
type ExampleStore struct {
	mu        sync.RWMutex
	examples  []types.Example
	dimension int
}

// NewExampleStore creates an empty store.
func NewExampleStore() *ExampleStore {
	return &ExampleStore{}
}

// Add appends an embedding under label.
func (s *ExampleStore) Add(label types.Label, embedding types.Embedding) (types.Example, error) {
	ex := types.Example{
		ID:        uuid.New().String(),
		Label:     label,
		Embedding: embedding,
		CreatedAt: time.Now(),
	}
	if err := s.insert(ex); err != nil {
		return types.Example{}, err
	}
	return ex, nil
}

// Insert stores a fully formed example, keeping its ID, session and
// timestamp. Missing IDs and timestamps are filled in.
func (s *ExampleStore) Insert(example types.Example) error {
	if example.ID == "" {
		example.ID = uuid.New().String()
	}
	if example.CreatedAt.IsZero() {
		example.CreatedAt = time.Now()
	}
	return s.insert(example)
}

func (s *ExampleStore) insert(ex types.Example) error {
	if len(ex.Embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	// Own the vector so later writes by the caller cannot reach the store.
	ex.Embedding = ex.Embedding.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension != 0 && len(ex.Embedding) != s.dimension {
		return fmt.Errorf("%w: embedding length (%d) does not match stored dimension (%d)",
			storage.ErrDimensionMismatch, len(ex.Embedding), s.dimension)
	}

	s.examples = append(s.examples, ex)
	s.dimension = len(ex.Embedding)
	return nil
}

// Clear removes all examples for label.
func (s *ExampleStore) Clear(label types.Label) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]types.Example, 0, len(s.examples))
	for _, ex := range s.examples {
		if ex.Label != label {
			kept = append(kept, ex)
		}
	}
	if len(kept) == len(s.examples) {
		return
	}
	s.examples = kept
	if len(kept) == 0 {
		s.dimension = 0
	}
}

// ClearAll removes every example and releases the dimension.
func (s *ExampleStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.examples = nil
	s.dimension = 0
}

// IsEmpty reports whether the store holds no examples.
func (s *ExampleStore) IsEmpty() bool {
	return s.Len() == 0
}

// Len returns the total number of examples.
func (s *ExampleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.examples)
}

// Dimension returns the stored embedding dimension, 0 when empty.
func (s *ExampleStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Counts returns the number of examples per label.
func (s *ExampleStore) Counts() map[types.Label]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[types.Label]int)
	for _, ex := range s.examples {
		counts[ex.Label]++
	}
	return counts
}

// AllExamples yields (label, embedding) pairs in insertion order.
// Each iteration works on the snapshot current when it starts, and every
// yielded embedding is a copy the caller may keep or modify.
func (s *ExampleStore) AllExamples() iter.Seq2[types.Label, types.Embedding] {
	return func(yield func(types.Label, types.Embedding) bool) {
		for _, ex := range s.snapshot() {
			if !yield(ex.Label, ex.Embedding.Clone()) {
				return
			}
		}
	}
}

func (s *ExampleStore) snapshot() []types.Example {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.examples[:len(s.examples):len(s.examples)]
}

var _ storage.ExampleStore = (*ExampleStore)(nil)
