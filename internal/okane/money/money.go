// Package money represents monetary amounts as integer cents.
//
// Keeping amounts integral makes summation exact: floating-point artifacts
// can only be introduced at presentation time, where values are rendered
// with two-decimal precision.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned for amounts that cannot be parsed or that
// carry more than two decimal places.
var ErrInvalidAmount = errors.New("money: invalid amount")

// Cents is a monetary amount in hundredths of the currency unit.
type Cents int64

// FromFloat converts a decimal amount (e.g. 50.5 meaning 50.50) to Cents,
// rounding half away from zero.
func FromFloat(f float64) Cents {
	return Cents(math.Round(f * 100))
}

// Parse converts a decimal string ("50", "50.5", "50.00") to Cents.
func Parse(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, s)
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	var cents int64
	if hasFrac {
		for len(frac) < 2 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || cents < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}

	if units < 0 || strings.HasPrefix(whole, "-") {
		return Cents(units*100 - cents), nil
	}
	return Cents(units*100 + cents), nil
}

// Float returns the amount as a float64 for JSON payloads.
func (c Cents) Float() float64 {
	return float64(c) / 100
}

// String renders the amount with exactly two decimal places.
func (c Cents) String() string {
	neg := c < 0
	v := int64(c)
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%d.%02d", v/100, v%100)
	if neg {
		return "-" + s
	}
	return s
}
