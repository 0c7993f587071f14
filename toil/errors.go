/*
errors.go - Error types for the lieu-time engine

ERROR CATEGORIES:
  1. Validation failures - user-correctable; the week breaks an invariant.
     Carried by *ValidationFailedError with the full violation list.
  2. Transition errors - a lifecycle call from the wrong state. These point
     at a UI bug, not bad user data. Carried by *TransitionError.
  3. Lookup / ownership errors - not found, not the owner, deciding on
     one's own lieu time.
  4. Transient errors - the repository could not complete a write right now
     (busy, locked, network). Retrying is the repository's business.

Malformed duration text is never an error; see duration.go.

USAGE:
  var vf *toil.ValidationFailedError
  if errors.As(err, &vf) {
      // show vf.Errors next to their dates
  }
  if errors.Is(err, toil.ErrTransient) {
      // ask the user to retry
  }
*/
package toil

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidationFailed is returned when a save or submit is refused
	// because the week violates a balance invariant.
	ErrValidationFailed = errors.New("week violates balance limits")

	// ErrInvalidTransition is returned when a submission lifecycle call is
	// made from a state that does not allow it.
	ErrInvalidTransition = errors.New("invalid submission transition")

	// ErrWeekLocked is returned when entries of a pending or approved week are edited.
	ErrWeekLocked = errors.New("week is locked by an active submission")

	// ErrActiveSubmissionExists is returned when a second pending or approved
	// submission would be created for the same user and week.
	ErrActiveSubmissionExists = errors.New("an active submission already exists for this week")

	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrNotOwner is returned when a user acts on another user's submission.
	ErrNotOwner = errors.New("submission belongs to another user")

	// ErrSelfDecision is returned when a user approves or rejects their own
	// submission, or sets their own balance.
	ErrSelfDecision = errors.New("cannot decide on your own lieu time")

	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidUser = errors.New("user id is required")

	// ErrTransient marks repository failures that may succeed on retry.
	ErrTransient = errors.New("transient persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationFailedError carries the violations that blocked a save or submit.
type ValidationFailedError struct {
	UserID    UserID
	WeekStart Date
	Errors    []ValidationError
}

func (e *ValidationFailedError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		parts[i] = v.String()
	}
	return fmt.Sprintf("week of %s has %d balance violation(s): %s",
		e.WeekStart, len(e.Errors), strings.Join(parts, "; "))
}

func (e *ValidationFailedError) Unwrap() error {
	return ErrValidationFailed
}

// TransitionError describes a refused lifecycle transition.
type TransitionError struct {
	SubmissionID SubmissionID
	From         SubmissionStatus
	To           SubmissionStatus
}

func (e *TransitionError) Error() string {
	if e.SubmissionID == "" {
		return fmt.Sprintf("cannot move week from %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("cannot move submission %s from %s to %s", e.SubmissionID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// TransientError wraps a repository failure that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsClientError returns true if the user can fix the error by changing data.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidUser)
}

// IsConflict returns true if the error is a lifecycle or uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrWeekLocked) ||
		errors.Is(err, ErrActiveSubmissionExists)
}

// IsForbidden returns true if the acting user may not perform the call.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotOwner) || errors.Is(err, ErrSelfDecision)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSubmissionNotFound)
}
