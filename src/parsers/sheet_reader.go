// backend/src/parsers/sheet_reader.go
package parsers

import (
	"fmt"
	"strings"

	"github.com/username/taxdeclaration/backend/src/datasource"
	"github.com/username/taxdeclaration/backend/src/models"
	"github.com/username/taxdeclaration/backend/src/security/validation"
)

// SheetReader turns workbook rows into the core's value objects.
type SheetReader struct {
	src    datasource.Source
	layout Layout
}

func NewSheetReader(src datasource.Source, layout Layout) *SheetReader {
	return &SheetReader{src: src, layout: layout}
}

func (r *SheetReader) Layout() Layout { return r.layout }

// RowRange returns the first and last data rows of sheet, failing with a
// DataSourceError when the sheet is missing or unreadable.
func (r *SheetReader) RowRange(op, sheet string, firstRow int) (int, int, error) {
	ok, err := r.src.HasSheet(sheet)
	if err != nil {
		return 0, 0, &models.DataSourceError{Op: op, Sheet: sheet, Err: err}
	}
	if !ok {
		return 0, 0, &models.DataSourceError{Op: op, Sheet: sheet, Err: datasource.ErrSheetNotFound}
	}
	last, err := r.src.RowCount(sheet)
	if err != nil {
		return 0, 0, &models.DataSourceError{Op: op, Sheet: sheet, Err: err}
	}
	return firstRow, last, nil
}

// Cell reads one cell by column letter, trimmed. Empty column letters read as "".
func (r *SheetReader) Cell(sheet string, row int, column string) (string, error) {
	col := datasource.ColumnIndex(column)
	if col == 0 {
		return "", nil
	}
	v, err := r.src.Cell(sheet, row, col)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

// RegistryIdentity returns the name and raw tax ID cells of a registry row.
func (r *SheetReader) RegistryIdentity(row int) (name, rawTaxID string, err error) {
	l := r.layout.Registry
	if name, err = r.Cell(l.Sheet, row, l.Name); err != nil {
		return "", "", err
	}
	if rawTaxID, err = r.Cell(l.Sheet, row, l.TaxID); err != nil {
		return "", "", err
	}
	return name, rawTaxID, nil
}

// ReadClient builds the ClientRecord stored on a registry row.
func (r *SheetReader) ReadClient(row int) (*models.ClientRecord, error) {
	l := r.layout.Registry
	cells := make(map[string]string)
	for field, col := range map[string]string{
		"name": l.Name, "tax_id": l.TaxID, "development": l.Development,
		"development_code": l.DevelopmentCode, "unit": l.Unit,
		"company_tax_id": l.CompanyTaxID, "company_name": l.CompanyName,
		"street": l.Street, "number": l.Number, "neighborhood": l.Neighborhood,
		"state": l.State, "city": l.City, "contract_code": l.ContractCode,
		"sale_value": l.SaleValue, "recorded_difference": l.RecordedDifference,
	} {
		v, err := r.Cell(l.Sheet, row, col)
		if err != nil {
			return nil, &models.DataSourceError{Op: "read client", Sheet: l.Sheet, Err: fmt.Errorf("row %d: %w", row, err)}
		}
		cells[field] = v
	}

	return &models.ClientRecord{
		TaxID:           validation.NormalizeTaxID(cells["tax_id"]),
		RawTaxID:        cells["tax_id"],
		DisplayName:     cells["name"],
		DevelopmentName: cells["development"],
		DevelopmentCode: cells["development_code"],
		UnitLabel:       cells["unit"],
		CompanyName:     cells["company_name"],
		CompanyTaxID:    cells["company_tax_id"],
		Address: models.Address{
			Street:       cells["street"],
			Number:       cells["number"],
			Neighborhood: cells["neighborhood"],
			City:         cells["city"],
			State:        cells["state"],
		},
		ContractCode:       cells["contract_code"],
		SaleValue:          ParseSaleValue(cells["sale_value"]),
		RecordedDifference: ParseOptionalAmount(cells["recorded_difference"]),
		Row:                row,
	}, nil
}

// ScanResult reports how much of a sheet a bulk read covered.
type ScanResult struct {
	Truncated bool
	Skipped   int
}

// ReadLedger parses the transactional sheet. Rows without a category or with a
// non-numeric amount are skipped. limit > 0 caps the number of rows scanned.
func (r *SheetReader) ReadLedger(limit int) ([]models.LedgerEntry, ScanResult, error) {
	l := r.layout.Ledger
	first, last, err := r.RowRange("read ledger", l.Sheet, l.FirstRow)
	if err != nil {
		return nil, ScanResult{}, err
	}
	last, truncated := capRows(first, last, limit)

	var entries []models.LedgerEntry
	res := ScanResult{Truncated: truncated}
	for row := first; row <= last; row++ {
		category, err := r.Cell(l.Sheet, row, l.Category)
		if err != nil {
			return nil, res, &models.DataSourceError{Op: "read ledger", Sheet: l.Sheet, Err: err}
		}
		amountCell, err := r.Cell(l.Sheet, row, l.Amount)
		if err != nil {
			return nil, res, &models.DataSourceError{Op: "read ledger", Sheet: l.Sheet, Err: err}
		}
		amount, ok := ParseAmount(amountCell)
		if category == "" || !ok {
			res.Skipped++
			continue
		}
		name, err := r.Cell(l.Sheet, row, l.Name)
		if err != nil {
			return nil, res, &models.DataSourceError{Op: "read ledger", Sheet: l.Sheet, Err: err}
		}
		taxID, err := r.Cell(l.Sheet, row, l.TaxID)
		if err != nil {
			return nil, res, &models.DataSourceError{Op: "read ledger", Sheet: l.Sheet, Err: err}
		}
		entries = append(entries, models.LedgerEntry{
			Row:           row,
			ClientName:    name,
			ClientTaxID:   taxID,
			CategoryLabel: category,
			Amount:        amount,
		})
	}
	return entries, res, nil
}

// ReadBalances parses the secondary balance ledger.
func (r *SheetReader) ReadBalances(limit int) ([]models.BalanceEntry, ScanResult, error) {
	l := r.layout.Balances
	first, last, err := r.RowRange("read balances", l.Sheet, l.FirstRow)
	if err != nil {
		return nil, ScanResult{}, err
	}
	last, truncated := capRows(first, last, limit)

	var entries []models.BalanceEntry
	res := ScanResult{Truncated: truncated}
	for row := first; row <= last; row++ {
		amountCell, err := r.Cell(l.Sheet, row, l.Amount)
		if err != nil {
			return nil, res, &models.DataSourceError{Op: "read balances", Sheet: l.Sheet, Err: err}
		}
		amount, ok := ParseAmount(amountCell)
		if !ok {
			res.Skipped++
			continue
		}
		development, err := r.Cell(l.Sheet, row, l.Development)
		if err != nil {
			return nil, res, &models.DataSourceError{Op: "read balances", Sheet: l.Sheet, Err: err}
		}
		taxID, err := r.Cell(l.Sheet, row, l.TaxID)
		if err != nil {
			return nil, res, &models.DataSourceError{Op: "read balances", Sheet: l.Sheet, Err: err}
		}
		entries = append(entries, models.BalanceEntry{
			Row:              row,
			DevelopmentLabel: development,
			ClientTaxID:      taxID,
			Amount:           amount,
		})
	}
	return entries, res, nil
}

// capRows limits [first, last] to at most limit rows.
func capRows(first, last, limit int) (int, bool) {
	if limit > 0 && last-first+1 > limit {
		return first + limit - 1, true
	}
	return last, false
}
