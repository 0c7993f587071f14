/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types that
  already carry JSON tags (toil.WeekView, toil.Submission, toil.Evaluation)
  are returned as-is; everything else goes through a DTO here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DURATIONS:
  Durations travel as strings. Requests accept anything the codec accepts
  ("8", "8:30", "8.5", "(01:00)"); responses are canonical HH:MM, plus a
  decimal hours figure where a number is handy.

VALIDATION:
  Request structs carry go-playground/validator tags, checked in
  decodeAndValidate before any handler logic runs.

SEE ALSO:
  - handlers.go: Uses these types
  - toil/duration.go: Codec
*/
package api

import (
	"time"

	"github.com/warp/toil-engine/toil"
)

// =============================================================================
// REQUESTS
// =============================================================================

// EntryInput is one day in a recompute request.
type EntryInput struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Requested string `json:"requested_hours" validate:"max=16"`
	Used      string `json:"used_hours" validate:"max=16"`
}

// RecomputeRequest asks the engine to evaluate entries without storing them.
type RecomputeRequest struct {
	CarryIn string       `json:"carry_in" validate:"max=16"`
	Entries []EntryInput `json:"entries" validate:"max=31,dive"`
}

// SaveEntryRequest is the body of PUT .../entries/{date}.
type SaveEntryRequest struct {
	Requested string `json:"requested_hours" validate:"max=16"`
	Used      string `json:"used_hours" validate:"max=16"`
}

// SubmitWeekRequest is the optional body of POST .../weeks/{date}/submit.
type SubmitWeekRequest struct {
	Comments string `json:"comments" validate:"max=1000"`
}

// RejectRequest is the body of POST /api/toil/submissions/{sid}/reject.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// SetBalanceRequest is the body of PUT /api/toil/balances/{id}.
type SetBalanceRequest struct {
	Total string `json:"total_hours" validate:"required,max=16"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// DurationDTO shows how the codec reads an input.
type DurationDTO struct {
	Input     string `json:"input"`
	Canonical string `json:"canonical"`
	Minutes   int    `json:"minutes"`
	Hours     string `json:"hours"`
}

// BalanceDTO represents a balance snapshot.
type BalanceDTO struct {
	UserID    string `json:"user_id"`
	Total     string `json:"total_hours"`
	Hours     string `json:"hours"`
	AsOf      string `json:"as_of,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// SubmissionListDTO wraps a list so it never serializes as null.
type SubmissionListDTO struct {
	Submissions []toil.Submission `json:"submissions"`
	Count       int               `json:"count"`
}

// HealthDTO is the /healthz body.
type HealthDTO struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toDurationDTO(input string) DurationDTO {
	d := toil.ParseDuration(input)
	return DurationDTO{
		Input:     input,
		Canonical: d.String(),
		Minutes:   d.Minutes(),
		Hours:     d.Hours().StringFixed(2),
	}
}

func toBalanceDTO(b toil.Balance) BalanceDTO {
	dto := BalanceDTO{
		UserID: string(b.UserID),
		Total:  b.Total.String(),
		Hours:  b.Total.Hours().StringFixed(2),
	}
	if !b.AsOf.IsZero() {
		dto.AsOf = b.AsOf.String()
	}
	if !b.UpdatedAt.IsZero() {
		dto.UpdatedAt = b.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toSubmissionList(subs []toil.Submission) SubmissionListDTO {
	if subs == nil {
		subs = []toil.Submission{}
	}
	return SubmissionListDTO{Submissions: subs, Count: len(subs)}
}

func toEntries(inputs []EntryInput) ([]toil.Entry, error) {
	entries := make([]toil.Entry, 0, len(inputs))
	for _, in := range inputs {
		date, err := toil.ParseDate(in.Date)
		if err != nil {
			return nil, err
		}
		entries = append(entries, toil.Entry{
			Date:      date,
			WeekStart: toil.WeekStart(date),
			Requested: toil.ParseDuration(in.Requested),
			Used:      toil.ParseDuration(in.Used),
			Status:    toil.EntryDraft,
		})
	}
	return entries, nil
}
