package validation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidationFailed is the umbrella error every ValidationError matches.
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidFormat    = errors.New("tax ID must have 11 digits")
	ErrInvalidChecksum  = errors.New("tax ID checksum is invalid")
)

const taxIDLength = 11

// ValidationError describes why a raw identifier was rejected.
type ValidationError struct {
	Input  string
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid tax ID %q: %v", e.Input, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// NormalizeTaxID strips every non-digit character from raw.
func NormalizeTaxID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateTaxID checks the two CPF check digits and returns the normalized
// 11-digit form.
func ValidateTaxID(raw string) (string, error) {
	digits := NormalizeTaxID(raw)
	if len(digits) != taxIDLength {
		return "", &ValidationError{Input: raw, Reason: ErrInvalidFormat}
	}
	if strings.Count(digits, digits[:1]) == taxIDLength {
		return "", &ValidationError{Input: raw, Reason: ErrInvalidChecksum}
	}

	d1 := checkDigit(digits[:9], 10)
	d2 := checkDigit(digits[:10], 11)
	if int(digits[9]-'0') != d1 || int(digits[10]-'0') != d2 {
		return "", &ValidationError{Input: raw, Reason: ErrInvalidChecksum}
	}
	return digits, nil
}

// IsValidTaxID is a convenience wrapper around ValidateTaxID.
func IsValidTaxID(raw string) bool {
	_, err := ValidateTaxID(raw)
	return err == nil
}

// checkDigit computes a weighted-sum mod 11 check digit, with weights
// starting at firstWeight and decreasing to 2.
func checkDigit(digits string, firstWeight int) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * (firstWeight - i)
	}
	remainder := sum % 11
	if remainder < 2 {
		return 0
	}
	return 11 - remainder
}

// FormatTaxID renders an 11-digit tax ID as 000.000.000-00. Other inputs are
// returned unchanged.
func FormatTaxID(taxID string) string {
	digits := NormalizeTaxID(taxID)
	if len(digits) != taxIDLength {
		return taxID
	}
	return digits[:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:]
}
