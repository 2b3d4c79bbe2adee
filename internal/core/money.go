// Package core holds the club ledger domain: money, financial years,
// transaction records and subscription schedules.
//
// This file contains money parsing and formatting. All amounts are stored
// and summed as integer paise; decimal strings exist only at the boundary.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in integer paise. Arithmetic on money always happens
// on the Paise field; FormatPaise/String convert for display only.
type Money struct {
	Paise int64
}

// ParseMoney converts a decimal string to paise with half-up rounding on
// the third decimal place. It accepts both dot (12.34) and comma (12,34)
// separators and an optional leading minus sign.
//
// Examples:
//
//	ParseMoney("50")     -> {5000}, nil
//	ParseMoney("50.00")  -> {5000}, nil
//	ParseMoney("12,34")  -> {1234}, nil
//	ParseMoney("12.345") -> {1235}, nil (rounds up)
//	ParseMoney("-20.50") -> {-2050}, nil
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return Money{}, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100.
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return Money{}, ErrInvalidAmount
	}

	// Take the first two fractional digits, half-up rounding on the third.
	var fracPaise int64
	if len(fracPart) > 0 {
		fracPaise = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracPaise += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracPaise++
			}
		}
	}

	paise := iv*100 + fracPaise
	if negative {
		paise = -paise
	}
	return Money{Paise: paise}, nil
}

// ParsePositiveMoney parses a user-supplied amount that must be strictly
// positive. Signs are rejected outright, matching the rule that negative
// amounts are never silently coerced.
func ParsePositiveMoney(s string) (Money, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "+") {
		return Money{}, ErrInvalidAmount
	}
	m, err := ParseMoney(trimmed)
	if err != nil {
		return Money{}, err
	}
	if m.Paise <= 0 {
		return Money{}, ErrInvalidAmount
	}
	return m, nil
}

// FormatPaise renders paise as a decimal string with exactly two
// fractional digits, e.g. 5000 -> "50.00", -2050 -> "-20.50".
func FormatPaise(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	frac := paise % 100
	out := sign + strconv.FormatInt(paise/100, 10) + "."
	if frac < 10 {
		out += "0"
	}
	return out + strconv.FormatInt(frac, 10)
}

// String implements fmt.Stringer with the boundary format.
func (m Money) String() string {
	return FormatPaise(m.Paise)
}

// IsZero reports whether the amount is exactly zero paise.
func (m Money) IsZero() bool {
	return m.Paise == 0
}

// Add returns the sum of two amounts in paise space.
func (m Money) Add(other Money) Money {
	return Money{Paise: m.Paise + other.Paise}
}

// Sub returns the difference of two amounts in paise space.
func (m Money) Sub(other Money) Money {
	return Money{Paise: m.Paise - other.Paise}
}

// MarshalJSON renders money as a 2-decimal string, e.g. "50.00".
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare number.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		m.Paise = 0
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	m.Paise = parsed.Paise
	return nil
}
