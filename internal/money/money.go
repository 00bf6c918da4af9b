// Package money centralises decimal rounding and currency handling for ledger amounts.
package money

import (
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits every persisted money value keeps.
const Places = 4

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
)

// Round rounds a money value to Places digits. It is the only rounding rule of the ledger.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Parse reads a decimal from its string form, accepting surrounding blanks.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// FromFloat converts configuration floats (rates) to decimals.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// NormalizeCurrency upper-cases an ISO 4217 code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCurrency reports whether code is a known ISO 4217 currency.
func ValidCurrency(code string) bool {
	code = NormalizeCurrency(code)
	if code == "" {
		return false
	}
	return gomoney.GetCurrency(code) != nil
}

// Format renders amount in the currency's display format, e.g. "¥1,000,000.00".
// Unknown currencies fall back to the plain decimal followed by the code.
func Format(amount decimal.Decimal, code string) string {
	code = NormalizeCurrency(code)
	cur := gomoney.GetCurrency(code)
	if cur == nil {
		return strings.TrimSpace(amount.StringFixed(Places) + " " + code)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}
