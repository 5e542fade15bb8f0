// backend/src/parsers/layout.go
package parsers

import (
	"fmt"
	"os"

	"github.com/username/taxdeclaration/backend/src/datasource"
	"gopkg.in/yaml.v2"
)

// RegistryLayout locates the client registry columns. Columns are letters.
type RegistryLayout struct {
	Sheet              string `yaml:"sheet"`
	FirstRow           int    `yaml:"first_row"`
	Name               string `yaml:"name"`
	TaxID              string `yaml:"tax_id"`
	Development        string `yaml:"development"`
	DevelopmentCode    string `yaml:"development_code"`
	Unit               string `yaml:"unit"`
	CompanyTaxID       string `yaml:"company_tax_id"`
	CompanyName        string `yaml:"company_name"`
	Street             string `yaml:"street"`
	Number             string `yaml:"number"`
	Neighborhood       string `yaml:"neighborhood"`
	State              string `yaml:"state"`
	City               string `yaml:"city"`
	ContractCode       string `yaml:"contract_code"`
	SaleValue          string `yaml:"sale_value"`
	RecordedDifference string `yaml:"recorded_difference"`
}

// LedgerLayout locates the transactional ledger columns.
type LedgerLayout struct {
	Sheet    string `yaml:"sheet"`
	FirstRow int    `yaml:"first_row"`
	Name     string `yaml:"name"`
	TaxID    string `yaml:"tax_id"`
	Amount   string `yaml:"amount"`
	Category string `yaml:"category"`
}

// BalanceLayout locates the secondary balance ledger columns.
type BalanceLayout struct {
	Sheet       string `yaml:"sheet"`
	FirstRow    int    `yaml:"first_row"`
	Development string `yaml:"development"`
	TaxID       string `yaml:"tax_id"`
	Amount      string `yaml:"amount"`
}

// Layout maps the three logical sheets onto workbook cells. The mapping has
// changed between workbook editions, so it is data rather than code.
type Layout struct {
	Registry RegistryLayout `yaml:"registry"`
	Ledger   LedgerLayout   `yaml:"ledger"`
	Balances BalanceLayout  `yaml:"balances"`
}

// DefaultLayout is the layout of the 2024 workbook.
func DefaultLayout() Layout {
	return Layout{
		Registry: RegistryLayout{
			Sheet:              "Base de Clientes",
			FirstRow:           3,
			Name:               "C",
			TaxID:              "D",
			Development:        "E",
			DevelopmentCode:    "F",
			Unit:               "G",
			CompanyTaxID:       "H",
			CompanyName:        "I",
			Street:             "J",
			Number:             "K",
			Neighborhood:       "L",
			State:              "M",
			City:               "N",
			ContractCode:       "O",
			SaleValue:          "P",
			RecordedDifference: "S",
		},
		Ledger: LedgerLayout{
			Sheet:    "UNION - 2024",
			FirstRow: 2,
			Name:     "E",
			TaxID:    "F",
			Amount:   "G",
			Category: "P",
		},
		Balances: BalanceLayout{
			Sheet:       "UNIFICADA ERP (paggo e dunning)",
			FirstRow:    2,
			Development: "B",
			TaxID:       "F",
			Amount:      "Q",
		},
	}
}

// LoadLayout reads a YAML layout file over the defaults. An empty path
// returns DefaultLayout.
func LoadLayout(path string) (Layout, error) {
	layout := DefaultLayout()
	if path == "" {
		return layout, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return layout, fmt.Errorf("reading layout file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return layout, fmt.Errorf("parsing layout file %s: %w", path, err)
	}
	if err := layout.Validate(); err != nil {
		return layout, fmt.Errorf("layout file %s: %w", path, err)
	}
	return layout, nil
}

// Validate checks that every sheet has a name, a first row and the columns
// the core reads.
func (l Layout) Validate() error {
	checks := []struct {
		sheet    string
		firstRow int
		columns  map[string]string
	}{
		{l.Registry.Sheet, l.Registry.FirstRow, map[string]string{"name": l.Registry.Name, "tax_id": l.Registry.TaxID}},
		{l.Ledger.Sheet, l.Ledger.FirstRow, map[string]string{"name": l.Ledger.Name, "tax_id": l.Ledger.TaxID, "amount": l.Ledger.Amount, "category": l.Ledger.Category}},
		{l.Balances.Sheet, l.Balances.FirstRow, map[string]string{"tax_id": l.Balances.TaxID, "amount": l.Balances.Amount}},
	}
	for _, c := range checks {
		if c.sheet == "" {
			return fmt.Errorf("sheet name is required")
		}
		if c.firstRow < 1 {
			return fmt.Errorf("sheet %q: first_row must be >= 1", c.sheet)
		}
		for field, col := range c.columns {
			if datasource.ColumnIndex(col) == 0 {
				return fmt.Errorf("sheet %q: invalid column %q for %s", c.sheet, col, field)
			}
		}
	}
	return nil
}
