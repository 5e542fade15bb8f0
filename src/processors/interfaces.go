package processors

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/username/taxdeclaration/backend/src/models"
)

// ClientLocator finds a client record in the registry sheet.
type ClientLocator interface {
	FindByID(taxID string) (*models.ClientRecord, error)
	FindByName(query string) (*models.ClientRecord, error)
}

// LedgerProvider supplies the parsed ledger sheets, normally from the
// aggregate cache.
type LedgerProvider interface {
	Snapshot(ctx context.Context) (*models.LedgerSnapshot, error)
}

// AggregationProcessor computes the monetary aggregates for a located client.
type AggregationProcessor interface {
	Aggregate(ctx context.Context, client *models.ClientRecord) (models.AggregateResult, error)
}

// ReconciliationProcessor compares the two independently sourced balances.
type ReconciliationProcessor interface {
	Reconcile(primary, secondary decimal.Decimal) models.ReconciliationReport
	ReconcileResult(result models.AggregateResult, client *models.ClientRecord) models.ReconciliationReport
}
