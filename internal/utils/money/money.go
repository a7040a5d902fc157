// Package money converts between decimal price strings and integer minor units.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// exponents lists currencies whose minor unit is not 1/100.
var exponents = map[string]int32{
	"XTR": 0, // platform token currency, whole units only
	"JPY": 0,
	"KRW": 0,
}

// Exponent returns the number of minor-unit digits of currency.
func Exponent(currency string) int32 {
	if e, ok := exponents[strings.ToUpper(currency)]; ok {
		return e
	}
	return 2
}

// ToMinor parses a decimal amount such as "199.00" into minor units.
// Amounts with more precision than the currency allows are rejected.
func ToMinor(value, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	shifted := d.Shift(Exponent(currency))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has too many decimals for %s", value, currency)
	}
	return shifted.IntPart(), nil
}

// FromMinor formats minor units with the currency's fixed decimals.
func FromMinor(amount int64, currency string) string {
	exp := Exponent(currency)
	return decimal.New(amount, -exp).StringFixed(exp)
}
