// Package money represents currency amounts as integer cents.
//
// The platform deals in small fiat values (deposits, order costs,
// refunds), so int64 cents covers the full range without floating
// point drift. Amounts cross the wire and the database as "12.34"
// style decimal strings.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is a currency value in cents.
type Amount int64

// Parse converts a decimal string like "12.34" into cents.
// At most two fractional digits are honored; extra digits are an error.
func Parse(s string) (Amount, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, false
	}
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, false
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil && frac != "" {
		return 0, false
	}

	v := w*100 + f
	if neg {
		v = -v
	}
	return Amount(v), true
}

// MustParse is Parse for literals in tests and seed data.
func MustParse(s string) Amount {
	a, ok := Parse(s)
	if !ok {
		panic(fmt.Sprintf("money: invalid amount %q", s))
	}
	return a
}

// Format renders cents as a decimal string with two fractional digits.
func (a Amount) Format() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (a Amount) String() string { return a.Format() }

// Percent returns p percent of the amount, truncated toward zero.
func (a Amount) Percent(p int64) Amount {
	return Amount(int64(a) * p / 100)
}

// Abs returns the absolute value.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// Max returns the larger of two amounts.
func Max(a, b Amount) Amount {
	if a > b {
		return a
	}
	return b
}

// FromFloat converts a float dollar value to cents, rounding to the
// nearest cent. Only used at ingestion boundaries for legacy payloads.
func FromFloat(f float64) Amount {
	if f >= 0 {
		return Amount(f*100 + 0.5)
	}
	return Amount(f*100 - 0.5)
}
