// backend/src/parsers/values.go
package parsers

import (
	"strings"

	"github.com/shopspring/decimal"
)

// unknownValueMarkers are placeholder texts meaning "to be verified".
var unknownValueMarkers = map[string]bool{
	"":          true,
	"VERIFICAR": true,
	"N/A":       true,
	"N/A.":      true,
	"-":         true,
}

// ParseAmount reads a monetary cell. Raw numeric values ("1500.5", "1.5E3")
// are tried first, then Brazilian formatted text ("R$ 1.234,56", "(200,00)").
func ParseAmount(cell string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return decimal.Zero, false
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d, true
	}
	return parseBRL(s)
}

// ParseSaleValue reads the registry sale value; placeholders and invalid or
// negative values yield an invalid NullDecimal.
func ParseSaleValue(cell string) decimal.NullDecimal {
	if unknownValueMarkers[strings.ToUpper(strings.TrimSpace(cell))] {
		return decimal.NullDecimal{}
	}
	d, ok := ParseAmount(cell)
	if !ok || d.IsNegative() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// ParseOptionalAmount reads an optional numeric cell; placeholders are invalid.
func ParseOptionalAmount(cell string) decimal.NullDecimal {
	if unknownValueMarkers[strings.ToUpper(strings.TrimSpace(cell))] {
		return decimal.NullDecimal{}
	}
	d, ok := ParseAmount(cell)
	return decimal.NullDecimal{Decimal: d, Valid: ok}
}

func parseBRL(s string) (decimal.Decimal, bool) {
	negative := false
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, " ", "")
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	if s == "" {
		return decimal.Zero, false
	}

	// With a comma present, dots are thousands separators and the comma is the
	// decimal point.
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}
