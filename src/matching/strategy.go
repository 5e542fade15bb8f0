package matching

import (
	"strings"

	"github.com/username/taxdeclaration/backend/src/security/validation"
)

// Strategy names one identity-resolution rule. Strategies are always tried in
// a fixed order and the first hit is reported as the match reason.
type Strategy string

const (
	ExactID     Strategy = "CPF_EXATO"
	ContainedID Strategy = "CPF_PARCIAL"
	IDInName    Strategy = "CPF_NO_NOME"
	ExactName   Strategy = "NOME_EXATO"
	SimilarName Strategy = "NOME_SIMILAR"
	NoMatch     Strategy = ""
)

const taxIDLength = 11

// Result is the outcome of running a Matcher.
type Result struct {
	Matched bool
	Reason  Strategy
}

// Target is the client a row is being attributed to.
type Target struct {
	TaxID string // Normalized 11-digit tax ID
	Name  string
}

// Candidate is the identity information found on one spreadsheet row.
type Candidate struct {
	RawTaxID string
	Name     string
}

// Matcher runs an ordered strategy list.
type Matcher struct {
	Strategies []Strategy
	// Threshold applies to SimilarName.
	Threshold float64
	// BidirectionalID makes ContainedID accept containment in either
	// direction. When false, ContainedID only looks for the target inside a
	// row identifier that does not normalize to a well-formed tax ID.
	BidirectionalID bool
}

// RegistryMatcher is the strategy list used to locate a client in the registry.
func RegistryMatcher() Matcher {
	return Matcher{Strategies: []Strategy{ExactID, ContainedID, IDInName}}
}

// LedgerMatcher is the strategy list used to attribute ledger rows to a client.
func LedgerMatcher(threshold float64) Matcher {
	return Matcher{
		Strategies:      []Strategy{ContainedID, ExactName, SimilarName},
		Threshold:       threshold,
		BidirectionalID: true,
	}
}

// Match returns the first strategy that attributes c to t.
func (m Matcher) Match(t Target, c Candidate) Result {
	for _, s := range m.Strategies {
		if m.apply(s, t, c) {
			return Result{Matched: true, Reason: s}
		}
	}
	return Result{Reason: NoMatch}
}

func (m Matcher) apply(s Strategy, t Target, c Candidate) bool {
	switch s {
	case ExactID:
		return t.TaxID != "" && validation.NormalizeTaxID(c.RawTaxID) == t.TaxID
	case ContainedID:
		if m.BidirectionalID {
			return TaxIDContains(t.TaxID, c.RawTaxID)
		}
		raw := strings.TrimSpace(c.RawTaxID)
		if t.TaxID == "" || raw == "" || len(validation.NormalizeTaxID(raw)) == taxIDLength {
			return false
		}
		return strings.Contains(stripIDPunctuation(raw), t.TaxID)
	case IDInName:
		return t.TaxID != "" && strings.Contains(stripIDPunctuation(c.Name), t.TaxID)
	case ExactName:
		a, b := strings.TrimSpace(t.Name), strings.TrimSpace(c.Name)
		return a != "" && strings.EqualFold(a, b)
	case SimilarName:
		return Similar(t.Name, c.Name, m.Threshold)
	}
	return false
}

// TaxIDContains reports whether the normalized forms of a and b contain one
// another. Blank identifiers never match.
func TaxIDContains(a, b string) bool {
	na, nb := validation.NormalizeTaxID(a), validation.NormalizeTaxID(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// stripIDPunctuation removes the separators of a formatted tax ID so that
// "529.982.247-25" typed into a cell is still found.
func stripIDPunctuation(s string) string {
	return strings.NewReplacer(".", "", "-", "", "/", "").Replace(s)
}
