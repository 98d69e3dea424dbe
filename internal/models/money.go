package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in minor currency units (kopecks).
// It is encoded in JSON as a decimal string with two fractional digits.
type Money int64

const (
	// MaxPaymentAmount is the largest single payment, 99999999.99
	MaxPaymentAmount Money = 99_999_999_99
	// MaxCollectionAmount bounds targets and running totals, 9999999999.99
	MaxCollectionAmount Money = 9_999_999_999_99
)

// ParseMoney parses "1500", "1500.5" or "1500.50" into minor units.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || !isDigits(whole) {
		return 0, fmt.Errorf("invalid amount: %q", s)
	}
	if hasFrac {
		if frac == "" || len(frac) > 2 || !isDigits(frac) {
			return 0, fmt.Errorf("amount allows at most two decimal places: %q", s)
		}
		if len(frac) == 1 {
			frac += "0"
		}
	} else {
		frac = "00"
	}

	units, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if neg {
		units = -units
	}
	return Money(units), nil
}

// String formats the amount as "1234.50".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both "12.50" and 12.5. Malformed amounts are
// reported as a *ValidationError.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}

	parsed, err := ParseMoney(raw)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	*m = parsed
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
