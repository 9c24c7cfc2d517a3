// Package core provides the domain value types shared by the engine,
// storage and HTTP layers.
//
// Amounts are persisted as integer cents. The calculation engine works in
// float64 euros and rounds back to cents only at persistence and
// presentation boundaries, never mid-calculation.
package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Money is a currency amount in integer cents.
type Money struct {
	Cents int64
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Euros returns the amount as float64 euros for calculations and display.
func (m Money) Euros() float64 {
	return float64(m.Cents) / 100.0
}

// FromEuros converts a float euro amount to Money with half-up rounding.
// NaN and infinite inputs map to zero so one bad value cannot poison a
// persisted aggregate.
func FromEuros(euros float64) Money {
	if math.IsNaN(euros) || math.IsInf(euros, 0) {
		return Money{}
	}
	return Money{Cents: int64(math.Round(euros * 100))}
}

// Round2 rounds a euro amount to two decimal places for presentation.
func Round2(euros float64) float64 {
	if math.IsNaN(euros) || math.IsInf(euros, 0) {
		return 0
	}
	return math.Round(euros*100) / 100
}

// ParseDecimalToCents converts a decimal string to cents with half-up
// rounding on the third decimal place. Both dot (12.34) and comma (12,34)
// separators are accepted. Negative and zero amounts are rejected.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}
