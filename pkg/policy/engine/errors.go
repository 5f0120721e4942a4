package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDocument indicates no constitution has been loaded.
	ErrNoDocument = errors.New("no constitution loaded")

	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrNilRequest indicates a check was called without a payload.
	ErrNilRequest = errors.New("nil request")
)

// SequenceReason explains an OutOfSequenceError.
type SequenceReason string

const (
	SequenceMissingToken SequenceReason = "missing token"
	SequenceUnknownToken SequenceReason = "unknown token"
	SequenceExpired      SequenceReason = "token expired"
	SequenceConsumed     SequenceReason = "token already consumed"
	SequenceBadState     SequenceReason = "invalid state transition"
)

// OutOfSequenceError is returned when a post-check is not preceded by a
// successful pre-check for the same request.
type OutOfSequenceError struct {
	Token  string
	Reason SequenceReason
}

// Error returns the error message.
func (e *OutOfSequenceError) Error() string {
	return fmt.Sprintf("post-check out of sequence: %s (token %q)", e.Reason, e.Token)
}

// ReloadError wraps the errors of a rejected document. The previous
// document remains in force.
type ReloadError struct {
	Source string
	Cause  error
}

// Error returns the error message.
func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload of %s rejected, previous constitution kept: %v", e.Source, e.Cause)
}

// Unwrap returns the underlying cause, usually an *errors.ErrorList.
func (e *ReloadError) Unwrap() error {
	return e.Cause
}

// TransitionError reports an illegal state machine transition.
type TransitionError struct {
	From State
	To   State
}

// Error returns the error message.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}
