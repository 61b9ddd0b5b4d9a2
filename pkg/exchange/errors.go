package exchange

import "fmt"

// ValidationError rejects a request before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GenerationError wraps a generator failure in a buffered exchange. The
// requester turn stays persisted.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
