package toil

// =============================================================================
// DAILY BALANCE CALCULATOR
// =============================================================================

// RecomputeWeek folds entries, in date order, into per-day running balances
// starting from carryIn. Entries need not be sorted; the input is not modified.
//
// A day's result depends only on carryIn and the entries dated on or before it.
func RecomputeWeek(carryIn Duration, entries []Entry) []DailyBalance {
	sorted := SortEntries(entries)

	days := make([]DailyBalance, 0, len(sorted))
	running := carryIn
	for _, e := range sorted {
		net := e.Net()
		running += net
		days = append(days, DailyBalance{
			Date:           e.Date,
			Net:            net,
			RunningBalance: running,
		})
	}
	return days
}

// ClosingBalance is the running balance after the last day, or carryIn when
// there are no days.
func ClosingBalance(carryIn Duration, days []DailyBalance) Duration {
	if len(days) == 0 {
		return carryIn
	}
	return days[len(days)-1].RunningBalance
}
