package dataset

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyIndex   = errors.New("spatial index is empty")
	ErrEmptyArea    = errors.New("area shape is empty")
	ErrMissingField = errors.New("category field missing")
)

// MissingFieldError marks one record skipped by TallyCategories.
type MissingFieldError struct {
	Row   int
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("row %d: field %q missing or empty", e.Row, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }
