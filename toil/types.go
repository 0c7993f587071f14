/*
Package toil implements the Time Off In Lieu balance engine.

PURPOSE:
  Turns a week of lieu-time entries (time earned, time used) into a running
  cumulative balance, checks the balance invariants, and governs the
  weekly submission lifecycle (draft -> pending -> approved/rejected).

KEY CONCEPTS IN THIS FILE (types.go):
  - Date: A calendar day (UTC midnight), the key of an entry
  - Entry: One row per user per day (requested / used durations)
  - Balance: The stored cumulative balance snapshot (the week's carry-in)
  - DailyBalance: Derived per-day net change and running balance

DESIGN PRINCIPLES:
  1. Pure computation: RecomputeWeek and Validate are plain functions of
     their inputs. No ambient user, no caching, no logging.
  2. Explicit parameters: user IDs and carry-in balances are always passed in.
  3. Typed durations: Duration is signed minutes, parsed once at the edge.

USAGE:
  days := toil.RecomputeWeek(balance.Total, entries)
  if errs := toil.Validate(days); len(errs) > 0 {
      // block save / submit
  }

SEE ALSO:
  - duration.go: Time codec
  - balance.go: Daily balance calculator
  - validate.go: Balance validator
  - submission.go: Submission state machine
  - service.go: Orchestration over a Repository
*/
package toil

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type EntryID string
type SubmissionID string

// =============================================================================
// DATE - Calendar day
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a calendar day normalized to UTC midnight.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t, keeping t's calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q (use YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

func (d Date) Time() time.Time       { return d.t }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Before(o Date) bool    { return d.t.Before(o.t) }
func (d Date) After(o Date) bool     { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool     { return d.t.Equal(o.t) }
func (d Date) AddDays(n int) Date    { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) String() string        { return d.t.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// WeekStart returns the Monday of the ISO week containing d.
func WeekStart(d Date) Date {
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7
	}
	return d.AddDays(-(wd - 1))
}

// WeekEnd returns the Sunday closing the week that starts on monday.
func WeekEnd(monday Date) Date { return monday.AddDays(6) }

// WeekDays returns the seven days of the week starting on monday.
func WeekDays(monday Date) []Date {
	days := make([]Date, 7)
	for i := range days {
		days[i] = monday.AddDays(i)
	}
	return days
}

// =============================================================================
// ENTRY - One row per user per day
// =============================================================================

type EntryStatus string

const (
	EntryDraft    EntryStatus = "draft"
	EntryPending  EntryStatus = "pending"
	EntryApproved EntryStatus = "approved"
	EntryRejected EntryStatus = "rejected"
)

// Entry is a user's lieu time for one day. ID is empty for placeholders
// that have never been persisted.
type Entry struct {
	ID        EntryID     `json:"id,omitempty"`
	UserID    UserID      `json:"user_id"`
	Date      Date        `json:"date"`
	WeekStart Date        `json:"week_start"`
	Requested Duration    `json:"requested_hours"`
	Used      Duration    `json:"used_hours"`
	Status    EntryStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at,omitempty"`
	UpdatedAt time.Time   `json:"updated_at,omitempty"`
}

// Net is the day's change to the balance: requested minus used.
func (e Entry) Net() Duration { return e.Requested - e.Used }

// IsPersisted reports whether the entry exists in the repository.
func (e Entry) IsPersisted() bool { return e.ID != "" }

// Placeholder returns the zero-value draft entry for a day.
func Placeholder(userID UserID, date Date) Entry {
	return Entry{
		UserID:    userID,
		Date:      date,
		WeekStart: WeekStart(date),
		Status:    EntryDraft,
	}
}

// FillWeek returns exactly seven entries for the week starting on monday,
// synthesizing placeholders for missing days. Entries outside the week are dropped.
func FillWeek(userID UserID, monday Date, entries []Entry) []Entry {
	byDate := make(map[Date]Entry, len(entries))
	for _, e := range entries {
		byDate[e.Date] = e
	}

	week := make([]Entry, 0, 7)
	for _, day := range WeekDays(monday) {
		if e, ok := byDate[day]; ok {
			if e.Status == "" {
				e.Status = EntryDraft
			}
			week = append(week, e)
			continue
		}
		week = append(week, Placeholder(userID, day))
	}
	return week
}

// SortEntries returns a copy of entries ordered by date.
func SortEntries(entries []Entry) []Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

// =============================================================================
// BALANCE - Stored snapshot, the carry-in for a week
// =============================================================================

// Balance is a user's cumulative lieu balance as of the most recent saved state.
type Balance struct {
	UserID    UserID    `json:"user_id"`
	Total     Duration  `json:"total_hours"`
	AsOf      Date      `json:"as_of"`
	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// DAILY BALANCE - Derived, never persisted
// =============================================================================

type DailyBalance struct {
	Date           Date     `json:"date"`
	Net            Duration `json:"net_hours"`
	RunningBalance Duration `json:"running_balance"`
}

// Opening is the balance before this day's change was applied.
func (d DailyBalance) Opening() Duration { return d.RunningBalance - d.Net }
