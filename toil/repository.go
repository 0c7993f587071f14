package toil

import (
	"context"
	"time"
)

// =============================================================================
// REPOSITORY - Persistence boundary
// =============================================================================

// Repository loads and saves entries, balances and submissions.
//
// Implementations must make CreateSubmission an atomic check-and-insert:
// when a pending or approved submission already exists for the user and
// week it returns ErrActiveSubmissionExists and writes nothing. Failures
// that may succeed on retry are wrapped with Transient.
//
// Implementations:
//   - store/sqlite: SQLite, unique partial index on active submissions
//   - store/memory: in-memory, mutex-guarded
type Repository interface {
	// LoadWeek returns the persisted entries of the week (0 to 7 rows).
	LoadWeek(ctx context.Context, userID UserID, weekStart Date) ([]Entry, error)

	// LoadBalance returns the user's balance snapshot, or a zero balance.
	LoadBalance(ctx context.Context, userID UserID) (Balance, error)

	SaveBalance(ctx context.Context, balance Balance) error

	// SaveEntry upserts the entry keyed by (userID, date).
	SaveEntry(ctx context.Context, userID UserID, date Date, requested, used Duration) (Entry, error)

	// CreateSubmission stores a pending submission and moves the week's
	// entries to pending in the same write.
	CreateSubmission(ctx context.Context, sub Submission) (Submission, error)

	// GetSubmission returns ErrSubmissionNotFound when id is unknown.
	GetSubmission(ctx context.Context, id SubmissionID) (*Submission, error)

	// LatestSubmission returns the most recently submitted row for the
	// week, whatever its status, or nil.
	LatestSubmission(ctx context.Context, userID UserID, weekStart Date) (*Submission, error)

	// UpdateSubmission persists a status change and moves the week's entry
	// statuses in lock-step. The stored status must allow the move to
	// sub.Status, otherwise a *TransitionError is returned and nothing is
	// written. A non-nil update is applied to the stored balance in the
	// same write.
	UpdateSubmission(ctx context.Context, sub Submission, update BalanceUpdate) error

	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
}

// BalanceUpdate derives the user's new balance from the one stored at the
// time the update is written. It may amend sub before sub is saved. A
// returned error aborts the whole update.
type BalanceUpdate func(sub *Submission, current Balance) (Balance, error)

// SubmissionFilter narrows ListSubmissions. Zero fields match everything.
type SubmissionFilter struct {
	UserID   UserID
	Statuses []SubmissionStatus
	From     *Date
	To       *Date
}

// Matches reports whether sub passes the filter.
func (f SubmissionFilter) Matches(sub Submission) bool {
	if f.UserID != "" && sub.UserID != f.UserID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == sub.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && sub.WeekStart.Before(*f.From) {
		return false
	}
	if f.To != nil && sub.WeekStart.After(*f.To) {
		return false
	}
	return true
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
