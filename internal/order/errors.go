package order

import (
	"fmt"
	"strings"
)

// ValidationError is bad user input. It is resolved locally and never
// reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SubmissionError is a clean failure: nothing in the sequence took effect.
type SubmissionError struct {
	Step string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PartialSequenceError means at least one step succeeded before a later one
// failed. The account is left in an intermediate state; nothing is rolled
// back. Unprotected is set when previously attached TP/SL orders were
// cancelled and their replacements were not placed.
type PartialSequenceError struct {
	Completed   []string
	Step        string
	Unprotected bool
	Err         error
}

func (e *PartialSequenceError) Error() string {
	msg := fmt.Sprintf("%s failed after %s succeeded: %v", e.Step, strings.Join(e.Completed, ", "), e.Err)
	if e.Unprotected {
		msg += " (position has no take-profit or stop-loss attached)"
	}
	return msg
}

func (e *PartialSequenceError) Unwrap() error {
	return e.Err
}
