// Package types defines the core data structures for the notouch alert device.
// These types represent labeled embedding examples, classification results,
// alert state and the UI projection published by the monitoring loop.
package types

import "time"

// Label identifies a behavior class. Labels are opaque and compared by value.
type Label string

// Default labels used by the device: a neutral baseline and the flagged
// behavior that raises an alert.
const (
	// LabelNeutral is the baseline class (hands away from the face)
	LabelNeutral Label = "0"

	// LabelFlagged is the undesired behavior class
	LabelFlagged Label = "1"
)

// Embedding is a fixed-length feature vector produced from a single frame.
type Embedding []float64

// Dim returns the dimension of the embedding.
func (e Embedding) Dim() int {
	return len(e)
}

// Clone returns a copy that does not share the backing array.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Float32 converts the embedding to float32, the precision used by vector
// databases and most model servers.
func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}

// EmbeddingFromFloat32 widens a float32 vector into an Embedding.
func EmbeddingFromFloat32(v []float32) Embedding {
	out := make(Embedding, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// Example is a labeled embedding collected during training.
// Examples are never mutated once created.
type Example struct {
	// ID is a unique identifier (uuid)
	ID string `json:"id"`

	// Label is the class this example belongs to
	Label Label `json:"label"`

	// Embedding is the feature vector
	Embedding Embedding `json:"embedding"`

	// SessionID links the example to the training session that produced it.
	// Empty for examples inserted outside a session.
	SessionID string `json:"session_id,omitempty"`

	// CreatedAt is when the example was collected
	CreatedAt time.Time `json:"created_at"`
}

// TrainingProgress reports how far a training session has advanced.
type TrainingProgress struct {
	SessionID string `json:"session_id"`
	Label     Label  `json:"label"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// Fraction returns Completed/Total in [0,1]. A zero Total reports 0.
func (p TrainingProgress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Completed) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

// TrainingSession summarises one call to the training controller.
type TrainingSession struct {
	ID         string    `json:"id"`
	Label      Label     `json:"label"`
	Requested  int       `json:"requested"`
	Completed  int       `json:"completed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Err holds the error message when the session was aborted
	Err string `json:"error,omitempty"`
}

// UIState is the latest-value projection published to UI collaborators.
type UIState struct {
	// Ready is false when the last tick could not produce a classification
	Ready bool `json:"ready"`

	// Touched is true while the flagged behavior is detected
	Touched bool `json:"touched"`

	// Message is a human readable status line
	Message string `json:"message"`

	Label      Label      `json:"label,omitempty"`
	Confidence float64    `json:"confidence"`
	AlertState AlertState `json:"alert_state"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
