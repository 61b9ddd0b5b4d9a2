package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the index dimensions.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNamespaceRequired is returned when an operation names no namespace.
	ErrNamespaceRequired = errors.New("namespace is required")
)

// CheckDimensions validates a vector against the index dimensions.
func CheckDimensions(want uint, embedding []float32) error {
	if uint(len(embedding)) != want {
		return fmt.Errorf("%w: index has %d dimensions, vector has %d", ErrDimensionMismatch, want, len(embedding))
	}
	return nil
}

// ValidateRecords checks the namespace and every record's dimensions.
func ValidateRecords(namespace string, want uint, records []Record) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}
	for _, r := range records {
		if r.ID == "" {
			return errors.New("record ID is required")
		}
		if err := CheckDimensions(want, r.Embedding); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
	}
	return nil
}
