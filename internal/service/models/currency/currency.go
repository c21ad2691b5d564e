package currency

import (
	"database/sql/driver"
	"errors"
	"math"
	"strings"
)

// Currency is a lower-case ISO 4217 code as the payment provider reports it, e.g. "usd".
type Currency string

const (
	CurrencyUSD Currency = "usd"
)

var (
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrAmountOverflow  = errors.New("amount overflows int64 minor units")
)

func (c Currency) String() string {
	return string(c)
}

func (c Currency) Value() (driver.Value, error) {
	return c.String(), nil
}

// ParseCurrency normalizes s to lower case and checks that it is a three-letter code.
func ParseCurrency(s string) (Currency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return "", ErrInvalidCurrency
		}
	}

	return Currency(s), nil
}

// LineTotal returns unitCents * quantity in minor units.
func LineTotal(unitCents int64, quantity int) (int64, error) {
	if quantity < 0 || unitCents < 0 {
		return 0, ErrAmountOverflow
	}
	if quantity == 0 || unitCents == 0 {
		return 0, nil
	}
	if unitCents > math.MaxInt64/int64(quantity) {
		return 0, ErrAmountOverflow
	}

	return unitCents * int64(quantity), nil
}

// Add returns a + b in minor units.
func Add(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrAmountOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, ErrAmountOverflow
	}

	return a + b, nil
}
