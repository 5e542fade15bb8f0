package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/taxdeclaration/backend/src/models"
)

// DefaultTolerance is the currency rounding tolerance between the two balances.
var DefaultTolerance = decimal.RequireFromString("0.01")

type reconciliationProcessorImpl struct {
	tolerance decimal.Decimal
}

// NewReconciliationProcessor creates a ReconciliationProcessor. A non-positive
// tolerance falls back to DefaultTolerance.
func NewReconciliationProcessor(tolerance decimal.Decimal) ReconciliationProcessor {
	if !tolerance.IsPositive() {
		tolerance = DefaultTolerance
	}
	return &reconciliationProcessorImpl{tolerance: tolerance}
}

// Reconcile reports the balances as consistent when they differ by at most the
// tolerance, inclusive. The signed discrepancy is only set when they do not.
func (p *reconciliationProcessorImpl) Reconcile(primary, secondary decimal.Decimal) models.ReconciliationReport {
	diff := primary.Sub(secondary)
	report := models.ReconciliationReport{
		Consistent:       diff.Abs().LessThanOrEqual(p.tolerance),
		Discrepancy:      decimal.Zero,
		PrimaryBalance:   primary,
		SecondaryBalance: secondary,
		Tolerance:        p.tolerance,
	}
	if !report.Consistent {
		report.Discrepancy = diff
	}
	return report
}

// ReconcileResult reconciles an aggregate result. When client is given and the
// registry stores a non-zero difference of its own, it is attached for display.
func (p *reconciliationProcessorImpl) ReconcileResult(result models.AggregateResult, client *models.ClientRecord) models.ReconciliationReport {
	report := p.Reconcile(result.PrimaryBalance, result.SecondaryBalance)
	if client != nil && client.RecordedDifference.Valid && !client.RecordedDifference.Decimal.IsZero() {
		d := client.RecordedDifference.Decimal
		report.RecordedDifference = &d
	}
	return report
}
