// backend/src/models/aggregate.go
package models

import "github.com/shopspring/decimal"

// AggregateResult holds the monetary aggregates computed for one client.
type AggregateResult struct {
	GrossRevenue      decimal.Decimal `json:"receita_bruta"`
	AncillaryExpenses decimal.Decimal `json:"despesas_acessorias"`
	// PrimaryBalance mirrors GrossRevenue under the current policy; it is not
	// measured independently. Pending product-owner confirmation.
	PrimaryBalance     decimal.Decimal `json:"saldo_union"`
	SecondaryBalance   decimal.Decimal `json:"saldo_paggo_dunning"`
	MatchedRecordCount int             `json:"registros_encontrados"`
	BalanceRecordCount int             `json:"registros_saldo"`

	// PrimaryBalanceDerived is true while PrimaryBalance is copied from GrossRevenue.
	PrimaryBalanceDerived bool `json:"saldo_union_derivado"`

	MatchBreakdown map[string]int `json:"match_breakdown,omitempty"` // Contributing rows per match strategy
	Truncated      bool           `json:"dados_truncados"`           // Underlying snapshot hit the scan limit
	SystemError    string         `json:"erro_sistema,omitempty"`    // Set when aggregation failed as a whole
}

// Failed reports whether the aggregation could not read its data.
func (r AggregateResult) Failed() bool {
	return r.SystemError != ""
}

// Total is the sum of every aggregate, used to detect clients without financial data.
func (r AggregateResult) Total() decimal.Decimal {
	return r.GrossRevenue.Add(r.AncillaryExpenses).Add(r.PrimaryBalance).Add(r.SecondaryBalance)
}

// Amounts returns the map of computed totals consumed by the document renderer.
func (r AggregateResult) Amounts() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"receita_bruta":       r.GrossRevenue,
		"despesas_acessorias": r.AncillaryExpenses,
		"saldo_union":         r.PrimaryBalance,
		"saldo_paggo_dunning": r.SecondaryBalance,
	}
}

// ReconciliationReport is the outcome of comparing the two balances.
type ReconciliationReport struct {
	Consistent       bool            `json:"consistente"`
	Discrepancy      decimal.Decimal `json:"diferenca"` // primary - secondary, zero when consistent
	PrimaryBalance   decimal.Decimal `json:"saldo_union"`
	SecondaryBalance decimal.Decimal `json:"saldo_paggo_dunning"`
	Tolerance        decimal.Decimal `json:"tolerancia"`

	// RecordedDifference is the difference the workbook itself stores for the client.
	RecordedDifference *decimal.Decimal `json:"diferenca_registrada,omitempty"`
}
