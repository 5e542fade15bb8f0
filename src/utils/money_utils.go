package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatBRL renders d as Brazilian currency, e.g. "R$ 1.234,56".
// Negative values are rendered as "-R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if d.Round(2).IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString("R$ ")
	b.WriteString(groupThousands(intPart))
	b.WriteByte(',')
	b.WriteString(fracPart)
	return b.String()
}

// groupThousands inserts "." every three digits from the right.
func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
