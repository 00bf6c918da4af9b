// Package symbol converts security codes between the ledger's (symbol, market)
// pair and the single-string forms used by quote vendors.
package symbol

import "strings"

type Format string

const (
	// FormatPlain sends the bare code; the market travels separately.
	FormatPlain Format = "plain"
	// FormatSuffix is "600000.SH".
	FormatSuffix Format = "suffix"
	// FormatPrefix is "sh600000".
	FormatPrefix Format = "prefix"
)

type Converter interface {
	ToVendor(s Symbol) string
	FromVendor(raw string) Symbol
	Format() Format
}

type Symbol struct {
	Code   string
	Market string
}

// Parse accepts "600000.SH", "sh600000" or a bare code.
func Parse(raw string) Symbol {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Symbol{}
	}
	if i := strings.LastIndex(s, "."); i > 0 && i < len(s)-1 {
		return Symbol{Code: s[:i], Market: s[i+1:]}
	}
	if len(s) > 2 && isLetters(s[:2]) && isDigits(s[2:]) {
		return Symbol{Code: s[2:], Market: s[:2]}
	}
	return Symbol{Code: s}
}

func (s Symbol) Suffix() string {
	if s.Market == "" {
		return s.Code
	}
	return s.Code + "." + s.Market
}

func (s Symbol) Prefix() string {
	return strings.ToLower(s.Market) + s.Code
}

type plainConverter struct{}

func (plainConverter) ToVendor(s Symbol) string     { return s.Code }
func (plainConverter) FromVendor(raw string) Symbol { return Parse(raw) }
func (plainConverter) Format() Format               { return FormatPlain }

type suffixConverter struct{}

func (suffixConverter) ToVendor(s Symbol) string     { return s.Suffix() }
func (suffixConverter) FromVendor(raw string) Symbol { return Parse(raw) }
func (suffixConverter) Format() Format               { return FormatSuffix }

type prefixConverter struct{}

func (prefixConverter) ToVendor(s Symbol) string     { return s.Prefix() }
func (prefixConverter) FromVendor(raw string) Symbol { return Parse(raw) }
func (prefixConverter) Format() Format               { return FormatPrefix }

var (
	Plain  Converter = plainConverter{}
	Suffix Converter = suffixConverter{}
	Prefix Converter = prefixConverter{}
)

// For returns the converter for format; empty means plain.
func For(format string) (Converter, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(format))) {
	case "", FormatPlain:
		return Plain, true
	case FormatSuffix:
		return Suffix, true
	case FormatPrefix:
		return Prefix, true
	default:
		return nil, false
	}
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
