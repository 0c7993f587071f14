/*
validate.go - Balance invariants over a recomputed week

INVARIANTS (evaluated per day over RecomputeWeek output):
  1. maxBalance:   running balance <= MaxBalance (40h)
  2. minBalance:   running balance >= MinBalance (0h)
  3. maxReduction: a run of strictly decreasing days may not draw the
                   balance down by more than MaxConsecutiveReduction (16h)
                   before a flat or increasing day interrupts it.

CONSECUTIVE REDUCTION:
  A left fold carrying (consecutive, previous). previous starts at the
  opening balance of the first day, so a drawdown on the first day counts.

    day      running   reduction   consecutive   error
    (open)   20:00
    Mon      14:00     6:00        6:00
    Tue      08:00     6:00        12:00
    Wed      02:00     6:00        18:00         maxReduction (Wed)

  A day where the balance is flat or rises resets consecutive to zero.

OUTPUT:
  Validation errors are data, not Go errors. The validator only describes;
  callers decide whether to block save or submit.
*/
package toil

import "fmt"

// =============================================================================
// LIMITS
// =============================================================================

type Limits struct {
	MaxBalance              Duration
	MinBalance              Duration
	MaxConsecutiveReduction Duration
}

func DefaultLimits() Limits {
	return Limits{
		MaxBalance:              Hours(40),
		MinBalance:              0,
		MaxConsecutiveReduction: Hours(16),
	}
}

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

type ViolationKind string

const (
	ViolationMaxBalance   ViolationKind = "maxBalance"
	ViolationMinBalance   ViolationKind = "minBalance"
	ViolationMaxReduction ViolationKind = "maxReduction"
)

// ValidationError is a single invariant violation on a day.
type ValidationError struct {
	Date    Date          `json:"date"`
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
}

func (v ValidationError) String() string {
	return fmt.Sprintf("%s %s: %s", v.Date, v.Kind, v.Message)
}

// =============================================================================
// VALIDATOR
// =============================================================================

type Validator struct {
	Limits Limits
}

func NewValidator(limits Limits) *Validator {
	return &Validator{Limits: limits}
}

// Validate checks days against the default limits.
func Validate(days []DailyBalance) []ValidationError {
	return NewValidator(DefaultLimits()).Validate(days)
}

// CanSubmit reports whether days satisfy every default invariant.
func CanSubmit(days []DailyBalance) bool {
	return len(Validate(days)) == 0
}

// Validate returns every violation, ordered by date and then by kind
// (maxBalance, minBalance, maxReduction). A day may carry several.
func (v *Validator) Validate(days []DailyBalance) []ValidationError {
	var errs []ValidationError
	if len(days) == 0 {
		return errs
	}

	consecutive := Duration(0)
	previous := days[0].Opening()

	for _, day := range days {
		errs = append(errs, v.ValidateBalance(day.Date, day.RunningBalance)...)

		reduction := previous - day.RunningBalance
		if reduction > 0 {
			consecutive += reduction
			if consecutive > v.Limits.MaxConsecutiveReduction {
				errs = append(errs, ValidationError{
					Date: day.Date,
					Kind: ViolationMaxReduction,
					Message: fmt.Sprintf("consecutive reduction %s exceeds the maximum of %s",
						consecutive, v.Limits.MaxConsecutiveReduction),
				})
			}
		} else {
			consecutive = 0
		}
		previous = day.RunningBalance
	}

	return errs
}

// ValidateBalance checks a single balance on date against the max and min
// limits. Used for administrative balance changes, where there is no run of
// days to fold.
func (v *Validator) ValidateBalance(date Date, balance Duration) []ValidationError {
	var errs []ValidationError
	if balance > v.Limits.MaxBalance {
		errs = append(errs, ValidationError{
			Date: date,
			Kind: ViolationMaxBalance,
			Message: fmt.Sprintf("balance %s exceeds the maximum of %s",
				balance, v.Limits.MaxBalance),
		})
	}
	if balance < v.Limits.MinBalance {
		errs = append(errs, ValidationError{
			Date: date,
			Kind: ViolationMinBalance,
			Message: fmt.Sprintf("balance %s is below the minimum of %s",
				balance, v.Limits.MinBalance),
		})
	}
	return errs
}

// CanSubmit reports whether days satisfy every configured invariant.
func (v *Validator) CanSubmit(days []DailyBalance) bool {
	return len(v.Validate(days)) == 0
}
