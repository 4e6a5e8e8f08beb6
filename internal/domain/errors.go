package domain

import (
	"errors"
	"fmt"
)

// Errors surfaced as run warnings. None of them aborts a run.
var (
	ErrUnknownColumn       = errors.New("unknown column")
	ErrIncompleteCondition = errors.New("incomplete condition")
	ErrInvalidConfig       = errors.New("invalid configuration")
)

// UnknownValueError reports an enum field holding an unrecognized value.
type UnknownValueError struct {
	Field string
	Value string
}

func (e *UnknownValueError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Field, e.Value)
}
