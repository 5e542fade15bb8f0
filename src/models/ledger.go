// backend/src/models/ledger.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one row of the transactional sheet with a numeric amount.
type LedgerEntry struct {
	Row           int             `json:"row"`
	ClientName    string          `json:"client_name"`
	ClientTaxID   string          `json:"client_tax_id"` // Raw digit-ish cell, may be blank or malformed
	CategoryLabel string          `json:"category_label"`
	Amount        decimal.Decimal `json:"amount"`
}

// BalanceEntry is one row of the secondary balance ledger.
type BalanceEntry struct {
	Row              int             `json:"row"`
	DevelopmentLabel string          `json:"development_label"`
	ClientTaxID      string          `json:"client_tax_id"`
	Amount           decimal.Decimal `json:"amount"`
}

// LedgerSnapshot is the fully parsed content of both ledger sheets for one
// version of the workbook. Snapshots are immutable once published.
type LedgerSnapshot struct {
	Entries           []LedgerEntry
	Balances          []BalanceEntry
	SourceModTime     time.Time
	LoadedAt          time.Time
	LedgerTruncated   bool // Scan limit reached on the ledger sheet
	BalancesTruncated bool // Scan limit reached on the secondary ledger sheet
	SkippedRows       int  // Rows dropped for non-numeric amounts or blank keys
}

// Truncated reports whether any sheet was cut by the scan limit.
func (s *LedgerSnapshot) Truncated() bool {
	return s != nil && (s.LedgerTruncated || s.BalancesTruncated)
}
