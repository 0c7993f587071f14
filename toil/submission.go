/*
submission.go - Weekly submission lifecycle

PURPOSE:
  A week of entries is approved as one unit. The submission row records
  that unit and its state; entry statuses follow it in lock-step.

STATE MACHINE:

      ┌────────┐  submit   ┌─────────┐  approve  ┌──────────┐
      │ draft  │ ────────▶ │ pending │ ────────▶ │ approved │
      └────────┘           └─────────┘           └──────────┘
          ▲                  │     │
          │     cancel       │     │ reject      ┌──────────┐
          └──────────────────┘     └───────────▶ │ rejected │
          ▲                                      └──────────┘
          │                  submit (again)           │
          └───────────────────────────────────────────┘

  draft is the state of a week with no submission, or whose latest
  submission was cancelled. A cancelled row stays for history.
  rejected is terminal for that submission but the week may be submitted
  again, creating a new submission.

CARRY-IN:
  A submission records the balance its week was computed on. Submit stores
  the snapshot of the moment; Approve replaces it with the snapshot the
  week was actually applied to. An approved week is always shown on its
  own carry-in, never on the snapshot it produced.

INVARIANT:
  At most one pending-or-approved submission per (user, week). The guard
  lives here; enforcing it across processes is the repository's job
  (unique index / check-and-insert under a lock).

SEE ALSO:
  - service.go: Submit / Cancel / Approve / Reject orchestration
  - store/sqlite: idx_unique_active_submission
*/
package toil

import "time"

// =============================================================================
// STATUS
// =============================================================================

type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "draft"
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionApproved  SubmissionStatus = "approved"
	SubmissionRejected  SubmissionStatus = "rejected"
	SubmissionCancelled SubmissionStatus = "cancelled"
)

// transitions lists the legal target states of each state.
var transitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionDraft:    {SubmissionPending},
	SubmissionRejected: {SubmissionPending},
	SubmissionPending:  {SubmissionApproved, SubmissionRejected, SubmissionCancelled},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to SubmissionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LegalTargets returns the states reachable from s in one step.
func LegalTargets(s SubmissionStatus) []SubmissionStatus {
	out := make([]SubmissionStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// IsActive reports whether the status counts against the one-per-week invariant.
func (s SubmissionStatus) IsActive() bool {
	return s == SubmissionPending || s == SubmissionApproved
}

// IsSubmittable reports whether a week in this state may be submitted.
func (s SubmissionStatus) IsSubmittable() bool {
	return CanTransition(s, SubmissionPending)
}

// IsEditable reports whether entries of a week in this state may change.
func (s SubmissionStatus) IsEditable() bool {
	return !s.IsActive()
}

// EntryStatus is the entry status that moves in lock-step with s.
func (s SubmissionStatus) EntryStatus() EntryStatus {
	switch s {
	case SubmissionPending:
		return EntryPending
	case SubmissionApproved:
		return EntryApproved
	case SubmissionRejected:
		return EntryRejected
	default:
		return EntryDraft
	}
}

// WeekStatus derives a week's state from its latest submission.
func WeekStatus(latest *Submission) SubmissionStatus {
	if latest == nil || latest.Status == SubmissionCancelled || latest.Status == "" {
		return SubmissionDraft
	}
	return latest.Status
}

// =============================================================================
// SUBMISSION
// =============================================================================

type Submission struct {
	ID          SubmissionID     `json:"id"`
	UserID      UserID           `json:"user_id"`
	WeekStart   Date             `json:"week_start"`
	Entries     []Entry          `json:"entries"`
	CarryIn     Duration         `json:"carry_in"`
	Status      SubmissionStatus `json:"status"`
	Comments    string           `json:"comments,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	ApprovedAt  *time.Time       `json:"approved_at,omitempty"`

	DecidedBy       string     `json:"decided_by,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Transition moves the submission to status to, stamping the matching
// timestamps and entry statuses. The submission is unchanged on error.
func (s *Submission) Transition(to SubmissionStatus, at time.Time) error {
	if !CanTransition(s.Status, to) {
		return &TransitionError{SubmissionID: s.ID, From: s.Status, To: to}
	}

	switch to {
	case SubmissionPending:
		s.SubmittedAt = at
	case SubmissionApproved:
		s.ApprovedAt = &at
		s.DecidedAt = &at
	case SubmissionRejected:
		s.DecidedAt = &at
	case SubmissionCancelled:
		s.CancelledAt = &at
	}

	s.Status = to
	for i := range s.Entries {
		s.Entries[i].Status = to.EntryStatus()
	}
	s.UpdatedAt = at
	return nil
}

// Net is the week's total change to the balance.
func (s *Submission) Net() Duration {
	var total Duration
	for _, e := range s.Entries {
		total += e.Net()
	}
	return total
}
