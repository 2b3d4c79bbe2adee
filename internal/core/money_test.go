package core

import "testing"

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"0", 0, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"-20.50", -2050, true},
		{"50.00", 5000, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{".", 0, false},
		{"12a", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Paise != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Paise, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParsePositiveMoney(t *testing.T) {
	if _, err := ParsePositiveMoney("0"); err == nil {
		t.Fatal("zero should be rejected")
	}
	if _, err := ParsePositiveMoney("-5"); err == nil {
		t.Fatal("negative should be rejected")
	}
	if _, err := ParsePositiveMoney("+5"); err == nil {
		t.Fatal("explicit plus sign should be rejected")
	}
	m, err := ParsePositiveMoney("50.00")
	if err != nil || m.Paise != 5000 {
		t.Fatalf("expected 5000, got %d (err=%v)", m.Paise, err)
	}
}

func TestFormatPaise(t *testing.T) {
	cases := []struct {
		in  int64
		out string
	}{
		{5000, "50.00"},
		{0, "0.00"},
		{1, "0.01"},
		{10, "0.10"},
		{-2050, "-20.50"},
		{123456789, "1234567.89"},
	}
	for _, tc := range cases {
		if got := FormatPaise(tc.in); got != tc.out {
			t.Fatalf("FormatPaise(%d) = %q, want %q", tc.in, got, tc.out)
		}
	}
}

// The codec must be idempotent: parse(format(parse(x))) == parse(x).
func TestMoneyRoundTrip(t *testing.T) {
	inputs := []string{"0.00", "50.00", "0.01", "999999.99", "12.34"}
	for _, in := range inputs {
		first, err := ParseMoney(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if first.String() != in {
			t.Fatalf("round trip %q -> %q", in, first.String())
		}
		second, err := ParseMoney(first.String())
		if err != nil || second != first {
			t.Fatalf("second round trip of %q changed value: %v -> %v", in, first, second)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	m := Money{Paise: 5000}
	b, err := m.MarshalJSON()
	if err != nil || string(b) != `"50.00"` {
		t.Fatalf("marshal: got %s (err=%v)", b, err)
	}

	var parsed Money
	if err := parsed.UnmarshalJSON([]byte(`"12.34"`)); err != nil || parsed.Paise != 1234 {
		t.Fatalf("unmarshal string: got %d (err=%v)", parsed.Paise, err)
	}
	if err := parsed.UnmarshalJSON([]byte(`7.5`)); err != nil || parsed.Paise != 750 {
		t.Fatalf("unmarshal number: got %d (err=%v)", parsed.Paise, err)
	}
	if err := parsed.UnmarshalJSON([]byte(`"junk"`)); err == nil {
		t.Fatal("unmarshal junk should fail")
	}
}
