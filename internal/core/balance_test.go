package core

import "testing"

func TestComputeBalance(t *testing.T) {
	cases := []struct {
		name    string
		opening int64
		totals  YearTotals
		want    int64
	}{
		{
			name:    "no transactions returns opening balance exactly",
			opening: 10000,
			totals:  YearTotals{},
			want:    10000,
		},
		{
			name:    "income minus approved expenses",
			opening: 10000,
			totals: YearTotals{
				SubscriptionsPaid: 3000,
				MemberFees:        1000,
				Donations:         1000,
				ApprovedExpenses:  2000,
			},
			want: 13000,
		},
		{
			name:    "balance can go negative",
			opening: 0,
			totals:  YearTotals{ApprovedExpenses: 500},
			want:    -500,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeBalance(Money{Paise: tc.opening}, tc.totals)
			if got.Paise != tc.want {
				t.Fatalf("got %d, want %d", got.Paise, tc.want)
			}
		})
	}
}
