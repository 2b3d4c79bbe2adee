package core

import (
	"errors"
	"fmt"
	"time"
)

// ScheduleRules are the year-level subscription parameters that shape
// every member's installment schedule.
type ScheduleRules struct {
	Frequency            Frequency
	TotalInstallments    int
	AmountPerInstallment Money
}

// RulesOf extracts the schedule rules from a year.
func RulesOf(y *Year) ScheduleRules {
	return ScheduleRules{
		Frequency:            y.Frequency,
		TotalInstallments:    y.TotalInstallments,
		AmountPerInstallment: y.AmountPerInstallment,
	}
}

// Equal reports whether two rule sets are identical.
func (r ScheduleRules) Equal(other ScheduleRules) bool {
	return r.Frequency == other.Frequency &&
		r.TotalInstallments == other.TotalInstallments &&
		r.AmountPerInstallment == other.AmountPerInstallment
}

// NewSchedule generates a fresh, fully unpaid schedule for the rules.
// A "none" frequency yields no installments.
func NewSchedule(rules ScheduleRules) []Installment {
	if rules.Frequency == None || rules.TotalInstallments <= 0 {
		return nil
	}
	installments := make([]Installment, rules.TotalInstallments)
	for i := range installments {
		installments[i] = Installment{
			Number:         i + 1,
			AmountExpected: rules.AmountPerInstallment,
		}
	}
	return installments
}

// SumInstallments re-derives paid and due totals from installment state.
// Totals are always recomputed this way, never patched incrementally, so
// a prior inconsistency cannot survive a write.
func SumInstallments(installments []Installment) (paid, due Money) {
	for _, ins := range installments {
		if ins.IsPaid {
			paid.Paise += ins.AmountExpected.Paise
		} else {
			due.Paise += ins.AmountExpected.Paise
		}
	}
	return paid, due
}

// CheckRuleChange validates a proposed rule change against one
// subscription's paid history. It must pass for every subscription of the
// year before any schedule is mutated.
func CheckRuleChange(sub *Subscription, old, next ScheduleRules) error {
	if old.Frequency != next.Frequency && sub.PaidCount() > 0 {
		return fmt.Errorf("member %s has %d paid installments: %w",
			sub.MemberID, sub.PaidCount(), ErrConflictingPayments)
	}
	if next.TotalInstallments < len(sub.Installments) {
		for _, ins := range sub.Installments {
			if ins.IsPaid && ins.Number > next.TotalInstallments {
				return fmt.Errorf("installment #%d of member %s is paid: %w",
					ins.Number, sub.MemberID, ErrConflictingPayments)
			}
		}
	}
	return nil
}

// ApplyRuleChange rewrites a subscription's installments for the new
// rules. The caller must have validated the change with CheckRuleChange
// first. When freezePaid is set, an amount change leaves already-paid
// installments' amounts as the point-in-time record; otherwise paid
// amounts are overwritten too.
//
// Totals are re-summed from the resulting installment state.
func ApplyRuleChange(sub *Subscription, old, next ScheduleRules, freezePaid bool) {
	switch {
	case next.Frequency == None:
		sub.Installments = nil

	case len(sub.Installments) == 0:
		sub.Installments = NewSchedule(next)

	default:
		if missing := next.TotalInstallments - len(sub.Installments); missing > 0 {
			start := maxNumber(sub.Installments)
			for n := start + 1; n <= start+missing; n++ {
				sub.Installments = append(sub.Installments, Installment{
					Number:         n,
					AmountExpected: next.AmountPerInstallment,
				})
			}
		} else if next.TotalInstallments < len(sub.Installments) {
			sub.Installments = sub.Installments[:next.TotalInstallments]
		}

		if next.AmountPerInstallment != old.AmountPerInstallment {
			for i := range sub.Installments {
				if freezePaid && sub.Installments[i].IsPaid {
					continue
				}
				sub.Installments[i].AmountExpected = next.AmountPerInstallment
			}
		}
	}

	sub.TotalPaid, sub.TotalDue = SumInstallments(sub.Installments)
}

func maxNumber(installments []Installment) int {
	m := 0
	for _, ins := range installments {
		if ins.Number > m {
			m = ins.Number
		}
	}
	return m
}

// Reallocate rebuilds a subscription's schedule from scratch and reapplies
// the member's cumulative paid credit greedily from installment 1 forward.
// The total paid amount is conserved exactly; which slot is marked paid is
// recomputed, not preserved. A remainder smaller than one installment is
// kept by shrinking that installment's expected amount to the remainder;
// credit beyond the whole schedule lands in an extra trailing slot.
func Reallocate(sub *Subscription, rules ScheduleRules, now time.Time) error {
	credit, _ := SumInstallments(sub.Installments)
	schedule := NewSchedule(rules)

	if rules.Frequency == None && credit.Paise > 0 {
		return fmt.Errorf("cannot disable subscriptions while credit of %s exists: %w",
			credit, ErrConflictingPayments)
	}

	remaining := credit.Paise
	for i := range schedule {
		if remaining <= 0 {
			break
		}
		if remaining < schedule[i].AmountExpected.Paise {
			schedule[i].AmountExpected = Money{Paise: remaining}
		}
		schedule[i].IsPaid = true
		paidAt := now
		schedule[i].PaidDate = &paidAt
		remaining -= schedule[i].AmountExpected.Paise
	}
	if remaining > 0 {
		paidAt := now
		schedule = append(schedule, Installment{
			Number:         maxNumber(schedule) + 1,
			AmountExpected: Money{Paise: remaining},
			IsPaid:         true,
			PaidDate:       &paidAt,
		})
	}

	sub.Installments = schedule
	sub.TotalPaid, sub.TotalDue = SumInstallments(schedule)
	if sub.TotalPaid != credit {
		return errors.New("reallocation lost paid credit")
	}
	return nil
}

// Toggle flips one installment's paid state, stamping or clearing the
// payment metadata, and re-sums the owning subscription's totals.
func (s *Subscription) Toggle(number int, collectorID string, now time.Time) (*Installment, error) {
	ins := s.Installment(number)
	if ins == nil {
		return nil, fmt.Errorf("installment #%d: %w", number, ErrNotFound)
	}

	ins.IsPaid = !ins.IsPaid
	if ins.IsPaid {
		paidAt := now
		ins.PaidDate = &paidAt
		ins.CollectedBy = collectorID
	} else {
		ins.PaidDate = nil
		ins.CollectedBy = ""
	}

	s.TotalPaid, s.TotalDue = SumInstallments(s.Installments)
	return ins, nil
}
