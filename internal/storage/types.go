package storage

import (
	"errors"
)

var (
	// ErrDimensionMismatch indicates an embedding whose length differs from the
	// embeddings already stored. This is an integration error and is never retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyStore indicates classification was attempted before any example
	// was stored. Callers should report a not-ready state and retry later.
	ErrEmptyStore = errors.New("example store is empty")

	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)
