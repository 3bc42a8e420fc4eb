package app

import (
	"errors"
	"fmt"

	"tripletfilter/api/internal/annotation"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrIncompleteDecision rejects a save before any store mutation: both sides
// must be decided.
var ErrIncompleteDecision = errors.New("both sides must be accepted or rejected")

// ErrSaveInFlight rejects a second concurrent save for the same pair.
var ErrSaveInFlight = errors.New("a save for this pair is already in flight")

// ReconciliationFailure aborts a save before anything is appended, so the
// log never references a pointer that was never created.
type ReconciliationFailure struct {
	Side annotation.Side
	Err  error
}

func (e *ReconciliationFailure) Error() string {
	return fmt.Sprintf("reconcile %s side: %v", e.Side, e.Err)
}

func (e *ReconciliationFailure) Unwrap() error { return e.Err }

// AppendFailure surfaces a log write that failed after retries and fallback.
// A record already appended for the other side stays durable; the next
// successful save of the same pair heals the gap.
type AppendFailure struct {
	Side   annotation.Side
	FileID string
	Err    error
}

func (e *AppendFailure) Error() string {
	return fmt.Sprintf("append %s record to %s: %v", e.Side, e.FileID, e.Err)
}

func (e *AppendFailure) Unwrap() error { return e.Err }
