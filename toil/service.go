/*
service.go - Orchestrates the engine over a Repository

PURPOSE:
  The pure engine (codec, calculator, validator, state machine) never
  touches storage. Service is the caller that loads a week, recomputes it,
  and applies the blocking policy:

  - SaveEntry is refused when the edited week would violate an invariant,
    or when the week is locked by a pending / approved submission.
  - Submit is refused from any state but draft / rejected, and when the
    week has violations.
  - Approve re-validates the frozen week on the snapshot current at write
    time, so two weeks that each pass alone cannot stack past the max.
  - Nobody approves, rejects or sets the balance of their own lieu time.

  Every call takes the acting user explicitly. Nothing is cached between
  calls, so a failed write leaves no half-applied state behind.

FLOW (SaveEntry):
  load entries + balance + latest submission
      -> fill placeholders -> apply edit -> RecomputeWeek -> Validate
      -> (violations? refuse) -> Repository.SaveEntry -> rebuilt WeekView

SEE ALSO:
  - repository.go: persistence contract
  - api/handlers.go: HTTP surface
*/
package toil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// WEEK VIEW - What the grid renders
// =============================================================================

type WeekView struct {
	UserID     UserID            `json:"user_id"`
	WeekStart  Date              `json:"week_start"`
	WeekEnd    Date              `json:"week_end"`
	CarryIn    Duration          `json:"carry_in"`
	Closing    Duration          `json:"closing_balance"`
	Entries    []Entry           `json:"entries"`
	Days       []DailyBalance    `json:"days"`
	Errors     []ValidationError `json:"errors"`
	Status     SubmissionStatus  `json:"status"`
	Submission *Submission       `json:"submission,omitempty"`
	Editable   bool              `json:"editable"`
	CanSubmit  bool              `json:"can_submit"`
}

// Evaluation is the pure engine result for an arbitrary set of entries.
type Evaluation struct {
	Days      []DailyBalance    `json:"days"`
	Errors    []ValidationError `json:"errors"`
	Closing   Duration          `json:"closing_balance"`
	CanSubmit bool              `json:"can_submit"`
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	repo      Repository
	validator *Validator
	logger    *zap.Logger
	now       Clock
}

type Option func(*Service)

func WithLimits(limits Limits) Option {
	return func(s *Service) { s.validator = NewValidator(limits) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.Named("toil.service")
		}
	}
}

func WithClock(now Clock) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		validator: NewValidator(DefaultLimits()),
		logger:    zap.L().Named("toil.service"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the limits the service validates against.
func (s *Service) Limits() Limits { return s.validator.Limits }

// Evaluate runs the calculator and validator without touching storage.
func (s *Service) Evaluate(carryIn Duration, entries []Entry) Evaluation {
	days := RecomputeWeek(carryIn, entries)
	errs := s.validator.Validate(days)
	return Evaluation{
		Days:      days,
		Errors:    errs,
		Closing:   ClosingBalance(carryIn, days),
		CanSubmit: len(errs) == 0,
	}
}

// =============================================================================
// WEEK
// =============================================================================

// LoadWeek returns the week containing day, recomputed and validated.
func (s *Service) LoadWeek(ctx context.Context, userID UserID, day Date) (*WeekView, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}
	monday := WeekStart(day)

	entries, err := s.repo.LoadWeek(ctx, userID, monday)
	if err != nil {
		return nil, fmt.Errorf("failed to load week: %w", err)
	}
	balance, err := s.repo.LoadBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	latest, err := s.repo.LatestSubmission(ctx, userID, monday)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}

	carryIn := balance.Total
	if latest != nil && latest.Status == SubmissionApproved {
		carryIn = latest.CarryIn
	}
	return s.buildView(userID, monday, carryIn, FillWeek(userID, monday, entries), latest), nil
}

func (s *Service) buildView(userID UserID, monday Date, carryIn Duration, week []Entry, latest *Submission) *WeekView {
	eval := s.Evaluate(carryIn, week)
	status := WeekStatus(latest)
	if eval.Errors == nil {
		eval.Errors = []ValidationError{}
	}

	return &WeekView{
		UserID:     userID,
		WeekStart:  monday,
		WeekEnd:    WeekEnd(monday),
		CarryIn:    carryIn,
		Closing:    eval.Closing,
		Entries:    week,
		Days:       eval.Days,
		Errors:     eval.Errors,
		Status:     status,
		Submission: latest,
		Editable:   status.IsEditable(),
		CanSubmit:  eval.CanSubmit && status.IsSubmittable(),
	}
}

// SaveEntry normalizes the typed values and stores them for date, unless
// the week is locked or the edit would break an invariant.
func (s *Service) SaveEntry(ctx context.Context, userID UserID, date Date, requested, used string) (*WeekView, error) {
	view, err := s.LoadWeek(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if !view.Editable {
		return nil, fmt.Errorf("%w: week of %s is %s", ErrWeekLocked, view.WeekStart, view.Status)
	}

	req, use := ParseDuration(requested), ParseDuration(used)

	candidate := make([]Entry, len(view.Entries))
	copy(candidate, view.Entries)
	idx := -1
	for i := range candidate {
		if candidate[i].Date.Equal(date) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s is outside week %s", ErrInvalidDate, date, view.WeekStart)
	}
	previous := candidate[idx]
	candidate[idx].Requested = req
	candidate[idx].Used = use

	eval := s.Evaluate(view.CarryIn, candidate)
	if len(eval.Errors) > 0 {
		s.logger.Info("save entry refused by balance limits",
			zap.String("user_id", string(userID)),
			zap.String("date", date.String()),
			zap.Int("violations", len(eval.Errors)),
		)
		return nil, &ValidationFailedError{UserID: userID, WeekStart: view.WeekStart, Errors: eval.Errors}
	}

	// Untouched days stay unpersisted.
	if !previous.IsPersisted() && req == 0 && use == 0 {
		return s.buildView(userID, view.WeekStart, view.CarryIn, candidate, view.Submission), nil
	}

	saved, err := s.repo.SaveEntry(ctx, userID, date, req, use)
	if err != nil {
		s.logger.Error("save entry failed",
			zap.String("user_id", string(userID)),
			zap.String("date", date.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to save entry: %w", err)
	}
	candidate[idx] = saved

	s.logger.Debug("entry saved",
		zap.String("user_id", string(userID)),
		zap.String("date", date.String()),
		zap.String("requested", req.String()),
		zap.String("used", use.String()),
	)
	return s.buildView(userID, view.WeekStart, view.CarryIn, candidate, view.Submission), nil
}

// =============================================================================
// SUBMISSION LIFECYCLE
// =============================================================================

// Submit creates a pending submission for the week containing day.
func (s *Service) Submit(ctx context.Context, userID UserID, day Date, comments string) (*Submission, error) {
	view, err := s.LoadWeek(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	if !view.Status.IsSubmittable() {
		terr := &TransitionError{From: view.Status, To: SubmissionPending}
		if view.Submission != nil {
			terr.SubmissionID = view.Submission.ID
		}
		return nil, terr
	}
	if len(view.Errors) > 0 {
		return nil, &ValidationFailedError{UserID: userID, WeekStart: view.WeekStart, Errors: view.Errors}
	}

	var entries []Entry
	for _, e := range view.Entries {
		if e.IsPersisted() {
			entries = append(entries, e)
		}
	}

	sub := Submission{
		ID:        SubmissionID(uuid.NewString()),
		UserID:    userID,
		WeekStart: view.WeekStart,
		Entries:   entries,
		CarryIn:   view.CarryIn,
		Status:    SubmissionDraft,
		Comments:  comments,
	}
	if err := sub.Transition(SubmissionPending, s.now()); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateSubmission(ctx, sub)
	if err != nil {
		s.logger.Warn("create submission failed",
			zap.String("user_id", string(userID)),
			zap.String("week_start", view.WeekStart.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	s.logger.Info("week submitted",
		zap.String("submission_id", string(created.ID)),
		zap.String("user_id", string(userID)),
		zap.String("week_start", view.WeekStart.String()),
	)
	return &created, nil
}

// Cancel reverts the owner's pending submission; the week becomes draft.
func (s *Service) Cancel(ctx context.Context, userID UserID, id SubmissionID) (*Submission, error) {
	sub, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrNotOwner
	}
	if err := sub.Transition(SubmissionCancelled, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSubmission(ctx, *sub, nil); err != nil {
		return nil, fmt.Errorf("failed to cancel submission: %w", err)
	}

	s.logger.Info("submission cancelled",
		zap.String("submission_id", string(id)),
		zap.String("user_id", string(userID)),
	)
	return sub, nil
}

// Approve accepts a pending submission and adds its week to the user's
// balance snapshot. The frozen entries are recomputed on the snapshot
// stored when the approval is written, and the approval is refused with a
// *ValidationFailedError when the result breaks a limit.
func (s *Service) Approve(ctx context.Context, approverID string, id SubmissionID) (*Submission, error) {
	sub, err := s.decidable(ctx, approverID, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := sub.Transition(SubmissionApproved, now); err != nil {
		return nil, err
	}
	sub.DecidedBy = approverID

	var (
		snapshot Balance
		carryIn  Duration
	)
	apply := func(stored *Submission, current Balance) (Balance, error) {
		days := RecomputeWeek(current.Total, stored.Entries)
		if errs := s.validator.Validate(days); len(errs) > 0 {
			return Balance{}, &ValidationFailedError{UserID: stored.UserID, WeekStart: stored.WeekStart, Errors: errs}
		}
		carryIn = current.Total
		stored.CarryIn = carryIn
		snapshot = Balance{
			UserID:    stored.UserID,
			Total:     ClosingBalance(current.Total, days),
			AsOf:      WeekEnd(stored.WeekStart),
			UpdatedAt: now,
		}
		return snapshot, nil
	}

	if err := s.repo.UpdateSubmission(ctx, *sub, apply); err != nil {
		var vf *ValidationFailedError
		if errors.As(err, &vf) {
			s.logger.Info("approval refused by balance limits",
				zap.String("submission_id", string(id)),
				zap.String("user_id", string(sub.UserID)),
				zap.Int("violations", len(vf.Errors)),
			)
		}
		return nil, fmt.Errorf("failed to approve submission: %w", err)
	}
	sub.CarryIn = carryIn

	s.logger.Info("submission approved",
		zap.String("submission_id", string(id)),
		zap.String("approver_id", approverID),
		zap.String("carry_in", sub.CarryIn.String()),
		zap.String("balance", snapshot.Total.String()),
	)
	return sub, nil
}

// Reject declines a pending submission. The week may be submitted again.
func (s *Service) Reject(ctx context.Context, approverID string, id SubmissionID, reason string) (*Submission, error) {
	sub, err := s.decidable(ctx, approverID, id)
	if err != nil {
		return nil, err
	}
	if err := sub.Transition(SubmissionRejected, s.now()); err != nil {
		return nil, err
	}
	sub.DecidedBy = approverID
	sub.RejectionReason = reason

	if err := s.repo.UpdateSubmission(ctx, *sub, nil); err != nil {
		return nil, fmt.Errorf("failed to reject submission: %w", err)
	}

	s.logger.Info("submission rejected",
		zap.String("submission_id", string(id)),
		zap.String("approver_id", approverID),
	)
	return sub, nil
}

// decidable loads a submission for approve / reject. Nobody decides on
// their own week.
func (s *Service) decidable(ctx context.Context, approverID string, id SubmissionID) (*Submission, error) {
	if approverID == "" {
		return nil, ErrInvalidUser
	}
	sub, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if UserID(approverID) == sub.UserID {
		return nil, ErrSelfDecision
	}
	return sub, nil
}

// GetSubmission returns a submission to its owner or to the user who
// decided it.
func (s *Service) GetSubmission(ctx context.Context, userID UserID, id SubmissionID) (*Submission, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}
	sub, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID && UserID(sub.DecidedBy) != userID {
		return nil, ErrNotOwner
	}
	return sub, nil
}

func (s *Service) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	return s.repo.ListSubmissions(ctx, filter)
}

// =============================================================================
// BALANCE
// =============================================================================

func (s *Service) GetBalance(ctx context.Context, userID UserID) (Balance, error) {
	if userID == "" {
		return Balance{}, ErrInvalidUser
	}
	return s.repo.LoadBalance(ctx, userID)
}

// SetBalance overwrites userID's balance snapshot, e.g. an opening
// balance. It is an administrative call: actorID may not be userID, and the
// new total must sit within the max and min limits.
func (s *Service) SetBalance(ctx context.Context, actorID string, userID UserID, total Duration) (Balance, error) {
	if userID == "" || actorID == "" {
		return Balance{}, ErrInvalidUser
	}
	if UserID(actorID) == userID {
		return Balance{}, ErrSelfDecision
	}
	now := s.now()
	asOf := DateOf(now)
	if errs := s.validator.ValidateBalance(asOf, total); len(errs) > 0 {
		return Balance{}, &ValidationFailedError{UserID: userID, WeekStart: WeekStart(asOf), Errors: errs}
	}

	balance := Balance{
		UserID:    userID,
		Total:     total,
		AsOf:      asOf,
		UpdatedAt: now,
	}
	if err := s.repo.SaveBalance(ctx, balance); err != nil {
		return Balance{}, fmt.Errorf("failed to save balance: %w", err)
	}

	s.logger.Info("balance set",
		zap.String("user_id", string(userID)),
		zap.String("actor_id", actorID),
		zap.String("total", total.String()),
	)
	return balance, nil
}
