// backend/src/models/client.go
package models

import "github.com/shopspring/decimal"

// ClientRecord is one taxpayer row of the client registry sheet.
// It is a value object: read fresh per lookup and never mutated by the core.
type ClientRecord struct {
	TaxID           string  `json:"cpf"`            // Normalized 11-digit tax ID
	RawTaxID        string  `json:"cpf_original"`   // Identifier cell exactly as stored
	DisplayName     string  `json:"cliente"`        // Name as stored in the registry
	DevelopmentName string  `json:"empreendimento"` // Real-estate development, also a join key for the secondary ledger
	DevelopmentCode string  `json:"sigla"`
	UnitLabel       string  `json:"unidade"`
	CompanyName     string  `json:"nome_empresa"`
	CompanyTaxID    string  `json:"cnpj_empresa"`
	Address         Address `json:"endereco"`
	ContractCode    string  `json:"codigo"`

	// SaleValue is invalid when the cell holds a placeholder such as "VERIFICAR".
	SaleValue decimal.NullDecimal `json:"valor_venda"`
	// RecordedDifference is the union/ERP difference already computed inside the workbook, if any.
	RecordedDifference decimal.NullDecimal `json:"diferenca_registrada"`

	Row         int    `json:"linha"`        // 1-based registry row the record came from
	MatchReason string `json:"motivo_match"` // Strategy that located the record
}

// Address holds the descriptive address fields used only for rendering.
type Address struct {
	Street       string `json:"logradouro"`
	Number       string `json:"numero"`
	Neighborhood string `json:"bairro"`
	City         string `json:"cidade"`
	State        string `json:"estado"`
}

// SaleValueKnown reports whether the registry holds a usable non-negative sale value.
func (c ClientRecord) SaleValueKnown() bool {
	return c.SaleValue.Valid && !c.SaleValue.Decimal.IsNegative()
}
