package core

// YearTotals carries the per-store sums for one financial year, all in
// paise. Zero values are valid: a year with no transactions sums to zero.
type YearTotals struct {
	SubscriptionsPaid int64
	MemberFees        int64
	Donations         int64
	ApprovedExpenses  int64
}

// Income returns the combined income side of the totals.
func (t YearTotals) Income() int64 {
	return t.SubscriptionsPaid + t.MemberFees + t.Donations
}

// ComputeBalance derives a year's point-in-time balance from its opening
// balance and store totals. Pure and deterministic; the same function is
// used for live dashboards and to freeze a closing balance at year close.
func ComputeBalance(opening Money, totals YearTotals) Money {
	return Money{Paise: opening.Paise + totals.Income() - totals.ApprovedExpenses}
}
