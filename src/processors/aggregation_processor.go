package processors

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/taxdeclaration/backend/src/logger"
	"github.com/username/taxdeclaration/backend/src/matching"
	"github.com/username/taxdeclaration/backend/src/models"
)

const (
	DefaultRevenueToken  = "RECEITA BRUTA"
	DefaultExpenseToken  = "ATIVO CIRCULANTE"
	DefaultNameThreshold = 0.9
)

// AggregationOptions configures the category tokens and the name-similarity
// threshold used to attribute ledger rows to a client.
type AggregationOptions struct {
	RevenueToken  string
	ExpenseToken  string
	NameThreshold float64
}

// aggregationProcessorImpl implements AggregationProcessor.
type aggregationProcessorImpl struct {
	provider     LedgerProvider
	matcher      matching.Matcher
	revenueToken string
	expenseToken string
}

// NewAggregationProcessor creates an AggregationProcessor reading ledgers from provider.
// Zero-valued options fall back to the defaults.
func NewAggregationProcessor(provider LedgerProvider, opts AggregationOptions) AggregationProcessor {
	if opts.RevenueToken == "" {
		opts.RevenueToken = DefaultRevenueToken
	}
	if opts.ExpenseToken == "" {
		opts.ExpenseToken = DefaultExpenseToken
	}
	if opts.NameThreshold <= 0 || opts.NameThreshold > 1 {
		opts.NameThreshold = DefaultNameThreshold
	}
	return &aggregationProcessorImpl{
		provider:     provider,
		matcher:      matching.LedgerMatcher(opts.NameThreshold),
		revenueToken: matching.NormalizeName(opts.RevenueToken),
		expenseToken: matching.NormalizeName(opts.ExpenseToken),
	}
}

// Aggregate sums the ledger rows attributed to client. Rows that cannot be
// attributed or parsed simply do not contribute. When the ledgers cannot be
// read at all, the result is zero-valued with SystemError set and the
// DataSourceError is returned alongside it.
func (p *aggregationProcessorImpl) Aggregate(ctx context.Context, client *models.ClientRecord) (models.AggregateResult, error) {
	result := models.AggregateResult{
		GrossRevenue:      decimal.Zero,
		AncillaryExpenses: decimal.Zero,
		PrimaryBalance:    decimal.Zero,
		SecondaryBalance:  decimal.Zero,
		MatchBreakdown:    make(map[string]int),
	}
	if client == nil {
		return result, errors.New("aggregate: client is nil")
	}

	snap, err := p.provider.Snapshot(ctx)
	if err != nil {
		var dsErr *models.DataSourceError
		if !errors.As(err, &dsErr) {
			dsErr = &models.DataSourceError{Op: "aggregate", Err: err}
		}
		result.SystemError = dsErr.Error()
		logger.Get().Error("Aggregation failed", "row", client.Row, "error", dsErr)
		return result, dsErr
	}

	target := matching.Target{TaxID: client.TaxID, Name: client.DisplayName}
	for _, e := range snap.Entries {
		category := matching.NormalizeName(e.CategoryLabel)
		isRevenue := strings.Contains(category, p.revenueToken)
		isExpense := strings.Contains(category, p.expenseToken)
		if !isRevenue && !isExpense {
			continue
		}
		m := p.matcher.Match(target, matching.Candidate{RawTaxID: e.ClientTaxID, Name: e.ClientName})
		if !m.Matched {
			continue
		}
		if isRevenue {
			result.GrossRevenue = result.GrossRevenue.Add(e.Amount)
			result.MatchedRecordCount++
			result.MatchBreakdown[string(m.Reason)]++
		}
		if isExpense {
			result.AncillaryExpenses = result.AncillaryExpenses.Add(e.Amount)
			result.MatchedRecordCount++
			result.MatchBreakdown[string(m.Reason)]++
		}
	}

	// Primary balance mirrors revenue; see models.AggregateResult.
	result.PrimaryBalance = result.GrossRevenue
	result.PrimaryBalanceDerived = true

	for _, b := range snap.Balances {
		if !matching.TaxIDContains(client.TaxID, b.ClientTaxID) {
			continue
		}
		if dev := strings.TrimSpace(client.DevelopmentName); dev != "" && !matching.ContainsFolded(b.DevelopmentLabel, dev) {
			continue
		}
		result.SecondaryBalance = result.SecondaryBalance.Add(b.Amount)
		result.BalanceRecordCount++
	}

	result.Truncated = snap.Truncated()
	if result.Truncated {
		logger.Get().Warn("Aggregates computed over a truncated ledger snapshot", "row", client.Row)
	}
	return result, nil
}
