package part

import (
	"errors"
	"fmt"
)

var (
	// ErrLogical marks a broken internal invariant of the writer: marks out of
	// order, mark rows that do not match written rows, incompatible column types
	ErrLogical = errors.New("logical error")

	// ErrWriterState is returned when an operation is not valid in the
	// current state of the writer
	ErrWriterState = errors.New("invalid writer state")

	// ErrValidation is returned by the self-check. It wraps ErrLogical.
	ErrValidation = fmt.Errorf("%w: part validation failed", ErrLogical)
)
