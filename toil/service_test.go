/*
service_test.go - Behavior of the submission service over a real repository

Covers the save/submit blocking policy, the one-active-submission rule
under concurrency, the lifecycle (cancel, approve, reject, resubmit) and
how repository failures surface.
*/
package toil_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/toil-engine/store/memory"
	"github.com/warp/toil-engine/toil"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

var (
	monday = toil.NewDate(2025, time.March, 3)
	now    = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
)

func newService(t *testing.T) (*toil.Service, *memory.Memory) {
	t.Helper()
	repo := memory.New()
	svc := toil.NewService(repo,
		toil.WithLogger(zap.NewNop()),
		toil.WithClock(func() time.Time { return now }),
	)
	return svc, repo
}

func save(t *testing.T, svc *toil.Service, user toil.UserID, day int, requested, used string) *toil.WeekView {
	t.Helper()
	view, err := svc.SaveEntry(context.Background(), user, monday.AddDays(day), requested, used)
	require.NoError(t, err)
	return view
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

func TestService_LoadEmptyWeek(t *testing.T) {
	svc, _ := newService(t)

	// WHEN: a week nobody touched is loaded from a Thursday
	view, err := svc.LoadWeek(context.Background(), "alice", monday.AddDays(3))

	// THEN: seven draft placeholders, editable and submittable
	require.NoError(t, err)
	assert.Equal(t, monday, view.WeekStart)
	assert.Equal(t, monday.AddDays(6), view.WeekEnd)
	require.Len(t, view.Entries, 7)
	require.Len(t, view.Days, 7)
	assert.Empty(t, view.Errors)
	assert.NotNil(t, view.Errors)
	assert.Equal(t, toil.SubmissionDraft, view.Status)
	assert.True(t, view.Editable)
	assert.True(t, view.CanSubmit)
	assert.Nil(t, view.Submission)
}

func TestService_LoadWeekRequiresUser(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.LoadWeek(context.Background(), "", monday)
	assert.ErrorIs(t, err, toil.ErrInvalidUser)
}

func TestService_SaveEntryNormalizesAndPersists(t *testing.T) {
	svc, repo := newService(t)

	// WHEN: loosely typed hours are saved
	view := save(t, svc, "alice", 1, "2.5", ":30")

	// THEN: the stored entry is canonical and the week recomputed
	assert.Equal(t, toil.Duration(150), view.Entries[1].Requested)
	assert.Equal(t, toil.Duration(30), view.Entries[1].Used)
	assert.True(t, view.Entries[1].IsPersisted())
	assert.Equal(t, toil.Hours(2), view.Closing)

	stored, err := repo.LoadWeek(context.Background(), "alice", monday)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "02:30", stored[0].Requested.String())
}

func TestService_SaveEntryRefusedOnViolation(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	// GIVEN: nothing in the bank
	// WHEN: an hour is taken
	_, err := svc.SaveEntry(ctx, "alice", monday, "", "1")

	// THEN: refused with the violation list, nothing stored
	var vf *toil.ValidationFailedError
	require.True(t, errors.As(err, &vf))
	require.Len(t, vf.Errors, 1)
	assert.Equal(t, toil.ViolationMinBalance, vf.Errors[0].Kind)

	stored, err := repo.LoadWeek(ctx, "alice", monday)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestService_SaveZeroOnUntouchedDaySkipsWrite(t *testing.T) {
	svc, repo := newService(t)

	view := save(t, svc, "alice", 4, "0", "00:00")

	assert.False(t, view.Entries[4].IsPersisted())
	stored, err := repo.LoadWeek(context.Background(), "alice", monday)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestService_SaveEntryUpdatesExistingDay(t *testing.T) {
	svc, repo := newService(t)

	first := save(t, svc, "alice", 0, "3", "")
	second := save(t, svc, "alice", 0, "1", "")

	assert.Equal(t, first.Entries[0].ID, second.Entries[0].ID)
	assert.Equal(t, toil.Hours(1), second.Closing)
	stored, _ := repo.LoadWeek(context.Background(), "alice", monday)
	assert.Len(t, stored, 1)
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestService_SubmitBlockedByViolation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// GIVEN: 3h earned, then the opening balance is set to 38h (41h total)
	save(t, svc, "alice", 0, "3", "")
	_, err := svc.SetBalance(ctx, "admin", "alice", toil.Hours(38))
	require.NoError(t, err)

	view, err := svc.LoadWeek(ctx, "alice", monday)
	require.NoError(t, err)
	assert.False(t, view.CanSubmit)

	// WHEN: submitted
	_, err = svc.Submit(ctx, "alice", monday, "")

	// THEN: refused, no submission exists
	assert.ErrorIs(t, err, toil.ErrValidationFailed)
	subs, err := svc.ListSubmissions(ctx, toil.SubmissionFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestService_SubmitLocksWeek(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	save(t, svc, "alice", 0, "2", "")
	save(t, svc, "alice", 2, "", "1")

	// WHEN: submitted with comments
	sub, err := svc.Submit(ctx, "alice", monday.AddDays(5), "late shift")
	require.NoError(t, err)

	// THEN: pending, persisted entries only, week locked
	assert.Equal(t, toil.SubmissionPending, sub.Status)
	assert.Equal(t, monday, sub.WeekStart)
	assert.Equal(t, "late shift", sub.Comments)
	assert.Equal(t, now, sub.SubmittedAt)
	require.Len(t, sub.Entries, 2)

	view, err := svc.LoadWeek(ctx, "alice", monday)
	require.NoError(t, err)
	assert.Equal(t, toil.SubmissionPending, view.Status)
	assert.False(t, view.Editable)
	assert.False(t, view.CanSubmit)
	assert.Equal(t, toil.EntryPending, view.Entries[0].Status)

	_, err = svc.SaveEntry(ctx, "alice", monday, "1", "")
	assert.ErrorIs(t, err, toil.ErrWeekLocked)
}

func TestService_SecondSubmitRefused(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	save(t, svc, "alice", 0, "1", "")

	_, err := svc.Submit(ctx, "alice", monday, "")
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "alice", monday, "")
	assert.ErrorIs(t, err, toil.ErrInvalidTransition)

	pending, err := svc.ListSubmissions(ctx, toil.SubmissionFilter{
		UserID:   "alice",
		Statuses: []toil.SubmissionStatus{toil.SubmissionPending},
	})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestService_ConcurrentSubmitsYieldOnePending(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	save(t, svc, "alice", 0, "1", "")

	// WHEN: ten submits race for the same week
	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(ctx, "alice", monday, "")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.True(t, toil.IsConflict(err), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	// THEN: exactly one pending submission
	assert.Equal(t, 1, successes)
	pending, err := svc.ListSubmissions(ctx, toil.SubmissionFilter{Statuses: []toil.SubmissionStatus{toil.SubmissionPending}})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestService_CancelReopensWeek(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	save(t, svc, "alice", 0, "1", "")
	sub, err := svc.Submit(ctx, "alice", monday, "")
	require.NoError(t, err)

	// GIVEN: someone else tries first
	_, err = svc.Cancel(ctx, "bob", sub.ID)
	assert.ErrorIs(t, err, toil.ErrNotOwner)

	// WHEN: the owner cancels
	cancelled, err := svc.Cancel(ctx, "alice", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, toil.SubmissionCancelled, cancelled.Status)

	// THEN: the week is draft and editable again, and can be resubmitted
	view, err := svc.LoadWeek(ctx, "alice", monday)
	require.NoError(t, err)
	assert.Equal(t, toil.SubmissionDraft, view.Status)
	assert.True(t, view.Editable)
	assert.Equal(t, toil.EntryDraft, view.Entries[0].Status)

	save(t, svc, "alice", 0, "2", "")
	again, err := svc.Submit(ctx, "alice", monday, "")
	require.NoError(t, err)
	assert.NotEqual(t, sub.ID, again.ID)

	_, err = svc.Cancel(ctx, "alice", sub.ID)
	assert.ErrorIs(t, err, toil.ErrInvalidTransition)
}

func TestService_ApproveWritesBalanceSnapshot(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.SetBalance(ctx, "admin", "alice", toil.Hours(5))
	require.NoError(t, err)
	save(t, svc, "alice", 0, "3", "")
	save(t, svc, "alice", 1, "", "1:30")
	sub, err := svc.Submit(ctx, "alice", monday, "")
	require.NoError(t, err)

	// WHEN: approved
	approved, err := svc.Approve(ctx, "manager", sub.ID)
	require.NoError(t, err)

	// THEN: status, decider and new balance snapshot
	assert.Equal(t, toil.SubmissionApproved, approved.Status)
	assert.Equal(t, "manager", approved.DecidedBy)
	require.NotNil(t, approved.ApprovedAt)

	balance, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, toil.Hours(6)+30*toil.Minute, balance.Total)
	assert.Equal(t, monday.AddDays(6), balance.AsOf)

	view, err := svc.LoadWeek(ctx, "alice", monday)
	require.NoError(t, err)
	assert.Equal(t, toil.SubmissionApproved, view.Status)
	assert.Equal(t, toil.EntryApproved, view.Entries[0].Status)

	// AND: the approved week is shown on the balance it was applied to
	assert.Equal(t, toil.Hours(5), approved.CarryIn)
	assert.Equal(t, toil.Hours(5), view.CarryIn)
	assert.Equal(t, toil.Hours(6)+30*toil.Minute, view.Closing)
	assert.Empty(t, view.Errors)

	// AND: an approved week cannot be cancelled or resubmitted
	_, err = svc.Cancel(ctx, "alice", sub.ID)
	assert.ErrorIs(t, err, toil.ErrInvalidTransition)
	_, err = svc.Submit(ctx, "alice", monday, "")
	assert.ErrorIs(t, err, toil.ErrInvalidTransition)
}

func TestService_RejectAllowsResubmit(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	save(t, svc, "alice", 0, "4", "")
	sub, err := svc.Submit(ctx, "alice", monday, "")
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, "manager", sub.ID, "missing project code")
	require.NoError(t, err)
	assert.Equal(t, toil.SubmissionRejected, rejected.Status)
	assert.Equal(t, "missing project code", rejected.RejectionReason)

	// THEN: editable and submittable again
	view, err := svc.LoadWeek(ctx, "alice", monday)
	require.NoError(t, err)
	assert.Equal(t, toil.SubmissionRejected, view.Status)
	assert.True(t, view.Editable)
	assert.True(t, view.CanSubmit)

	save(t, svc, "alice", 0, "3", "")
	again, err := svc.Submit(ctx, "alice", monday, "fixed")
	require.NoError(t, err)
	assert.Equal(t, toil.SubmissionPending, again.Status)

	got, err := svc.GetSubmission(ctx, "alice", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, toil.SubmissionRejected, got.Status, "the rejected row is kept")
}

func TestService_DecisionsRequireApprover(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Approve(ctx, "", "sub-1")
	assert.ErrorIs(t, err, toil.ErrInvalidUser)
	_, err = svc.Reject(ctx, "", "sub-1", "no")
	assert.ErrorIs(t, err, toil.ErrInvalidUser)

	_, err = svc.Approve(ctx, "manager", "missing")
	assert.True(t, toil.IsNotFound(err))
}

func TestService_ApproveRefusesStackedWeeks(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// GIVEN: +10h on Mon-Wed of two consecutive weeks, each valid from 0h
	for _, day := range []int{0, 1, 2, 7, 8, 9} {
		save(t, svc, "alice", day, "10", "")
	}
	first, err := svc.Submit(ctx, "alice", monday, "")
	require.NoError(t, err)
	second, err := svc.Submit(ctx, "alice", monday.AddDays(7), "")
	require.NoError(t, err)
	assert.Equal(t, toil.Duration(0), second.CarryIn)

	// WHEN: both are approved
	_, err = svc.Approve(ctx, "manager", first.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, "manager", second.ID)

	// THEN: the second would take the balance to 60h and is refused
	var vf *toil.ValidationFailedError
	require.ErrorAs(t, err, &vf)
	assert.Equal(t, monday.AddDays(7), vf.WeekStart)
	assert.Equal(t, toil.ViolationMaxBalance, vf.Errors[0].Kind)

	balance, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, toil.Hours(30), balance.Total)

	pending, err := svc.GetSubmission(ctx, "alice", second.ID)
	require.NoError(t, err)
	assert.Equal(t, toil.SubmissionPending, pending.Status)

	// AND: the approved week still reads as it was approved
	view, err := svc.LoadWeek(ctx, "alice", monday)
	require.NoError(t, err)
	assert.Equal(t, toil.Duration(0), view.CarryIn)
	assert.Equal(t, toil.Hours(30), view.Closing)
	assert.Empty(t, view.Errors)

	// AND: the pending week shows why it cannot be approved
	next, err := svc.LoadWeek(ctx, "alice", monday.AddDays(7))
	require.NoError(t, err)
	assert.Equal(t, toil.Hours(30), next.CarryIn)
	assert.NotEmpty(t, next.Errors)
}

func TestService_ConcurrentApprovalsKeepEveryWeek(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// GIVEN: four pending weeks of +5h each
	var ids []toil.SubmissionID
	for week := 0; week < 4; week++ {
		save(t, svc, "alice", week*7, "5", "")
		sub, err := svc.Submit(ctx, "alice", monday.AddDays(week*7), "")
		require.NoError(t, err)
		ids = append(ids, sub.ID)
	}

	// WHEN: all are approved at once
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id toil.SubmissionID) {
			defer wg.Done()
			_, err := svc.Approve(ctx, "manager", id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	// THEN: no approval is lost
	balance, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, toil.Hours(20), balance.Total)
}

func TestService_NobodyDecidesOwnLieuTime(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	save(t, svc, "alice", 0, "2", "")
	sub, err := svc.Submit(ctx, "alice", monday, "")
	require.NoError(t, err)

	// WHEN: alice acts on her own week and balance
	_, err = svc.Approve(ctx, "alice", sub.ID)
	assert.ErrorIs(t, err, toil.ErrSelfDecision)
	_, err = svc.Reject(ctx, "alice", sub.ID, "oops")
	assert.ErrorIs(t, err, toil.ErrSelfDecision)
	_, err = svc.SetBalance(ctx, "alice", "alice", toil.Hours(10))
	assert.ErrorIs(t, err, toil.ErrSelfDecision)

	// THEN: nothing moved
	got, err := svc.GetSubmission(ctx, "alice", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, toil.SubmissionPending, got.Status)
	balance, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, toil.Duration(0), balance.Total)
}

func TestService_SetBalanceRespectsLimits(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		total toil.Duration
		kind  toil.ViolationKind
	}{
		{"above maximum", toil.Hours(500), toil.ViolationMaxBalance},
		{"below minimum", -toil.Hours(1), toil.ViolationMinBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SetBalance(ctx, "admin", "alice", tt.total)

			var vf *toil.ValidationFailedError
			require.ErrorAs(t, err, &vf)
			require.Len(t, vf.Errors, 1)
			assert.Equal(t, tt.kind, vf.Errors[0].Kind)
		})
	}

	balance, err := svc.SetBalance(ctx, "admin", "alice", toil.Hours(40))
	require.NoError(t, err)
	assert.Equal(t, toil.Hours(40), balance.Total)
}

func TestService_GetSubmissionOwnerOrDecider(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	save(t, svc, "alice", 0, "1", "")
	sub, err := svc.Submit(ctx, "alice", monday, "")
	require.NoError(t, err)

	_, err = svc.GetSubmission(ctx, "bob", sub.ID)
	assert.ErrorIs(t, err, toil.ErrNotOwner)

	_, err = svc.Reject(ctx, "bob", sub.ID, "wrong project")
	require.NoError(t, err)

	got, err := svc.GetSubmission(ctx, "bob", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.DecidedBy)

	_, err = svc.GetSubmission(ctx, "carol", sub.ID)
	assert.True(t, toil.IsForbidden(err))
}

// =============================================================================
// REPOSITORY FAILURES
// =============================================================================

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) LoadWeek(ctx context.Context, userID toil.UserID, weekStart toil.Date) ([]toil.Entry, error) {
	args := m.Called(ctx, userID, weekStart)
	entries, _ := args.Get(0).([]toil.Entry)
	return entries, args.Error(1)
}

func (m *mockRepo) LoadBalance(ctx context.Context, userID toil.UserID) (toil.Balance, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(toil.Balance), args.Error(1)
}

func (m *mockRepo) SaveBalance(ctx context.Context, balance toil.Balance) error {
	return m.Called(ctx, balance).Error(0)
}

func (m *mockRepo) SaveEntry(ctx context.Context, userID toil.UserID, date toil.Date, requested, used toil.Duration) (toil.Entry, error) {
	args := m.Called(ctx, userID, date, requested, used)
	return args.Get(0).(toil.Entry), args.Error(1)
}

func (m *mockRepo) CreateSubmission(ctx context.Context, sub toil.Submission) (toil.Submission, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(toil.Submission), args.Error(1)
}

func (m *mockRepo) GetSubmission(ctx context.Context, id toil.SubmissionID) (*toil.Submission, error) {
	args := m.Called(ctx, id)
	sub, _ := args.Get(0).(*toil.Submission)
	return sub, args.Error(1)
}

func (m *mockRepo) LatestSubmission(ctx context.Context, userID toil.UserID, weekStart toil.Date) (*toil.Submission, error) {
	args := m.Called(ctx, userID, weekStart)
	sub, _ := args.Get(0).(*toil.Submission)
	return sub, args.Error(1)
}

func (m *mockRepo) UpdateSubmission(ctx context.Context, sub toil.Submission, update toil.BalanceUpdate) error {
	return m.Called(ctx, sub, update).Error(0)
}

func (m *mockRepo) ListSubmissions(ctx context.Context, filter toil.SubmissionFilter) ([]toil.Submission, error) {
	args := m.Called(ctx, filter)
	subs, _ := args.Get(0).([]toil.Submission)
	return subs, args.Error(1)
}

func TestService_TransientSaveFailure(t *testing.T) {
	// GIVEN: a repository whose write is busy
	repo := new(mockRepo)
	ctx := context.Background()
	repo.On("LoadWeek", ctx, toil.UserID("alice"), monday).Return(nil, nil)
	repo.On("LoadBalance", ctx, toil.UserID("alice")).Return(toil.Balance{UserID: "alice"}, nil)
	repo.On("LatestSubmission", ctx, toil.UserID("alice"), monday).Return(nil, nil)
	repo.On("SaveEntry", ctx, toil.UserID("alice"), monday, toil.Hours(2), toil.Duration(0)).
		Return(toil.Entry{}, toil.Transient("save entry", errors.New("database is locked")))

	svc := toil.NewService(repo, toil.WithLogger(zap.NewNop()))

	// WHEN: an entry is saved
	_, err := svc.SaveEntry(ctx, "alice", monday, "2", "")

	// THEN: the failure is retryable, not a validation failure
	require.Error(t, err)
	assert.True(t, toil.IsRetryable(err))
	assert.False(t, errors.Is(err, toil.ErrValidationFailed))
	repo.AssertExpectations(t)
}

func TestService_TransientSubmitFailure(t *testing.T) {
	repo := new(mockRepo)
	ctx := context.Background()
	stored := toil.Entry{ID: "e-1", UserID: "alice", Date: monday, WeekStart: monday, Requested: toil.Hours(1), Status: toil.EntryDraft}
	repo.On("LoadWeek", ctx, toil.UserID("alice"), monday).Return([]toil.Entry{stored}, nil)
	repo.On("LoadBalance", ctx, toil.UserID("alice")).Return(toil.Balance{UserID: "alice"}, nil)
	repo.On("LatestSubmission", ctx, toil.UserID("alice"), monday).Return(nil, nil)
	repo.On("CreateSubmission", ctx, mock.MatchedBy(func(sub toil.Submission) bool {
		return sub.Status == toil.SubmissionPending && len(sub.Entries) == 1
	})).Return(toil.Submission{}, toil.Transient("create submission", errors.New("database is busy")))

	svc := toil.NewService(repo, toil.WithLogger(zap.NewNop()))

	_, err := svc.Submit(ctx, "alice", monday, "")

	assert.ErrorIs(t, err, toil.ErrTransient)
	repo.AssertExpectations(t)
}

func TestService_EvaluateUsesConfiguredLimits(t *testing.T) {
	svc := toil.NewService(memory.New(),
		toil.WithLogger(zap.NewNop()),
		toil.WithLimits(toil.Limits{MaxBalance: toil.Hours(8), MaxConsecutiveReduction: toil.Hours(16)}),
	)
	entries := []toil.Entry{{Date: monday, Requested: toil.Hours(9)}}

	eval := svc.Evaluate(0, entries)

	assert.False(t, eval.CanSubmit)
	require.Len(t, eval.Errors, 1)
	assert.Equal(t, toil.ViolationMaxBalance, eval.Errors[0].Kind)
	assert.Equal(t, toil.Hours(9), eval.Closing)
	assert.Equal(t, toil.Hours(8), svc.Limits().MaxBalance)
}
