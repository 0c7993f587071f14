package toil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_MaxBalance(t *testing.T) {
	// GIVEN: 38h carried in and 3h earned on Monday
	days := RecomputeWeek(Hours(38), []Entry{entry(0, "03:00", "00:00")})

	// WHEN: validated
	errs := Validate(days)

	// THEN: one maxBalance error on Monday
	require.Len(t, errs, 1)
	assert.Equal(t, ViolationMaxBalance, errs[0].Kind)
	assert.Equal(t, monday, errs[0].Date)
	assert.Equal(t, Hours(41), days[0].RunningBalance)
	assert.False(t, CanSubmit(days))
}

func TestValidate_MaxBalanceBoundaryIsAllowed(t *testing.T) {
	days := RecomputeWeek(Hours(38), []Entry{entry(0, "2", "")})
	assert.Empty(t, Validate(days))
	assert.True(t, CanSubmit(days))
}

func TestValidate_MinBalance(t *testing.T) {
	// GIVEN: nothing carried in and 1h taken
	days := RecomputeWeek(0, []Entry{entry(0, "", "01:00")})

	errs := Validate(days)

	// THEN: one minBalance error, the 1h drawdown is under the reduction cap
	require.Len(t, errs, 1)
	assert.Equal(t, ViolationMinBalance, errs[0].Kind)
	assert.Equal(t, Duration(-60), days[0].RunningBalance)
}

func TestValidate_ConsecutiveReductionResets(t *testing.T) {
	// GIVEN: 20h, -10h, +2h, -10h
	days := RecomputeWeek(Hours(20), []Entry{
		entry(0, "", "10"),
		entry(1, "2", ""),
		entry(2, "", "10"),
	})

	// WHEN: validated
	errs := Validate(days)

	// THEN: the increase on day 2 resets the run, so day 3 is fine
	assert.Empty(t, errs)
}

func TestValidate_ConsecutiveReductionTrips(t *testing.T) {
	// GIVEN: three consecutive 6h drawdowns (18h > 16h)
	days := RecomputeWeek(Hours(20), []Entry{
		entry(0, "", "6"),
		entry(1, "", "6"),
		entry(2, "", "6"),
	})

	errs := Validate(days)

	// THEN: exactly one maxReduction, dated day 3
	require.Len(t, errs, 1)
	assert.Equal(t, ViolationMaxReduction, errs[0].Kind)
	assert.Equal(t, monday.AddDays(2), errs[0].Date)
}

func TestValidate_FlatDayResetsRun(t *testing.T) {
	days := RecomputeWeek(Hours(30), []Entry{
		entry(0, "", "10"),
		entry(1, "", ""),
		entry(2, "", "10"),
	})
	assert.Empty(t, Validate(days))
}

func TestValidate_SeveralKindsOnOneDay(t *testing.T) {
	// GIVEN: a 17h drawdown from 10h in one day
	days := RecomputeWeek(Hours(10), []Entry{entry(0, "", "17")})

	errs := Validate(days)

	// THEN: minBalance and maxReduction, in kind order
	require.Len(t, errs, 2)
	assert.Equal(t, ViolationMinBalance, errs[0].Kind)
	assert.Equal(t, ViolationMaxReduction, errs[1].Kind)
}

func TestValidate_OrderedByDate(t *testing.T) {
	days := RecomputeWeek(Hours(39), []Entry{
		entry(0, "2", ""),
		entry(1, "", "1"),
		entry(2, "3", ""),
	})

	errs := Validate(days)

	require.Len(t, errs, 2)
	assert.Equal(t, monday, errs[0].Date)
	assert.Equal(t, monday.AddDays(2), errs[1].Date)
}

func TestValidator_CustomLimits(t *testing.T) {
	v := NewValidator(Limits{MaxBalance: Hours(10), MinBalance: -Hours(5), MaxConsecutiveReduction: Hours(4)})
	days := RecomputeWeek(0, []Entry{entry(0, "", "3"), entry(1, "", "2")})

	errs := v.Validate(days)

	require.Len(t, errs, 1)
	assert.Equal(t, ViolationMaxReduction, errs[0].Kind)
	assert.Equal(t, monday.AddDays(1), errs[0].Date)
	assert.False(t, v.CanSubmit(days))
}

func TestValidate_Empty(t *testing.T) {
	assert.Empty(t, Validate(nil))
	assert.True(t, CanSubmit(nil))
}
