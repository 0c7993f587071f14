// Package memory provides an in-memory toil.Repository (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/toil-engine/toil"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     map[entryKey]toil.Entry
	balances    map[toil.UserID]toil.Balance
	submissions map[toil.SubmissionID]storedSubmission
	seq         int
	now         toil.Clock
}

type entryKey struct {
	UserID toil.UserID
	Date   toil.Date
}

// storedSubmission keeps insertion order so "latest" is stable when two
// submissions share a timestamp.
type storedSubmission struct {
	sub toil.Submission
	seq int
}

var _ toil.Repository = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		entries:     make(map[entryKey]toil.Entry),
		balances:    make(map[toil.UserID]toil.Balance),
		submissions: make(map[toil.SubmissionID]storedSubmission),
		now:         time.Now,
	}
}

// =============================================================================
// ENTRIES
// =============================================================================

func (m *Memory) LoadWeek(_ context.Context, userID toil.UserID, weekStart toil.Date) ([]toil.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []toil.Entry
	for _, day := range toil.WeekDays(weekStart) {
		if e, ok := m.entries[entryKey{UserID: userID, Date: day}]; ok {
			result = append(result, e)
		}
	}
	return result, nil
}

// SaveEntry upserts by (user, date). Status is preserved on update.
func (m *Memory) SaveEntry(_ context.Context, userID toil.UserID, date toil.Date, requested, used toil.Duration) (toil.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	k := entryKey{UserID: userID, Date: date}
	e, ok := m.entries[k]
	if !ok {
		e = toil.Entry{
			ID:        toil.EntryID(uuid.NewString()),
			UserID:    userID,
			Date:      date,
			WeekStart: toil.WeekStart(date),
			Status:    toil.EntryDraft,
			CreatedAt: now,
		}
	}
	e.Requested = requested
	e.Used = used
	e.UpdatedAt = now
	m.entries[k] = e
	return e, nil
}

// =============================================================================
// BALANCES
// =============================================================================

func (m *Memory) LoadBalance(_ context.Context, userID toil.UserID) (toil.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if b, ok := m.balances[userID]; ok {
		return b, nil
	}
	return toil.Balance{UserID: userID}, nil
}

func (m *Memory) SaveBalance(_ context.Context, balance toil.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[balance.UserID] = balance
	return nil
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// CreateSubmission checks and inserts under one lock, so two concurrent
// submits for the same week cannot both succeed.
func (m *Memory) CreateSubmission(_ context.Context, sub toil.Submission) (toil.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.submissions {
		if s.sub.UserID == sub.UserID && s.sub.WeekStart.Equal(sub.WeekStart) && s.sub.Status.IsActive() {
			return toil.Submission{}, toil.ErrActiveSubmissionExists
		}
	}

	m.seq++
	m.submissions[sub.ID] = storedSubmission{sub: cloneSubmission(sub), seq: m.seq}
	m.setWeekStatusLocked(sub.UserID, sub.WeekStart, sub.Status.EntryStatus())
	return cloneSubmission(sub), nil
}

func (m *Memory) GetSubmission(_ context.Context, id toil.SubmissionID) (*toil.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.submissions[id]
	if !ok {
		return nil, toil.ErrSubmissionNotFound
	}
	sub := cloneSubmission(s.sub)
	return &sub, nil
}

func (m *Memory) LatestSubmission(_ context.Context, userID toil.UserID, weekStart toil.Date) (*toil.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := false
	var latest storedSubmission
	for _, s := range m.submissions {
		if s.sub.UserID != userID || !s.sub.WeekStart.Equal(weekStart) {
			continue
		}
		if !found || s.seq > latest.seq {
			latest, found = s, true
		}
	}
	if !found {
		return nil, nil
	}
	sub := cloneSubmission(latest.sub)
	return &sub, nil
}

// UpdateSubmission checks the stored status, applies update and writes
// under one lock, so two approvals never read the same balance.
func (m *Memory) UpdateSubmission(_ context.Context, sub toil.Submission, update toil.BalanceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.submissions[sub.ID]
	if !ok {
		return toil.ErrSubmissionNotFound
	}
	if !toil.CanTransition(stored.sub.Status, sub.Status) {
		return &toil.TransitionError{SubmissionID: sub.ID, From: stored.sub.Status, To: sub.Status}
	}

	sub = cloneSubmission(sub)
	var balance *toil.Balance
	if update != nil {
		current, ok := m.balances[sub.UserID]
		if !ok {
			current = toil.Balance{UserID: sub.UserID}
		}
		next, err := update(&sub, current)
		if err != nil {
			return err
		}
		balance = &next
	}

	stored.sub = sub
	m.submissions[sub.ID] = stored
	m.setWeekStatusLocked(sub.UserID, sub.WeekStart, sub.Status.EntryStatus())
	if balance != nil {
		m.balances[balance.UserID] = *balance
	}
	return nil
}

func (m *Memory) ListSubmissions(_ context.Context, filter toil.SubmissionFilter) ([]toil.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []storedSubmission
	for _, s := range m.submissions {
		if filter.Matches(s.sub) {
			matched = append(matched, s)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	result := make([]toil.Submission, len(matched))
	for i, s := range matched {
		result[i] = cloneSubmission(s.sub)
	}
	return result, nil
}

func (m *Memory) setWeekStatusLocked(userID toil.UserID, weekStart toil.Date, status toil.EntryStatus) {
	for _, day := range toil.WeekDays(weekStart) {
		k := entryKey{UserID: userID, Date: day}
		if e, ok := m.entries[k]; ok {
			e.Status = status
			m.entries[k] = e
		}
	}
}

func cloneSubmission(sub toil.Submission) toil.Submission {
	out := sub
	out.Entries = make([]toil.Entry, len(sub.Entries))
	copy(out.Entries, sub.Entries)
	return out
}
