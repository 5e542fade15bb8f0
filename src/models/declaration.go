package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Issue kinds attached to a declaration.
const (
	IssueInformativeDifference = "DIFERENCA_INFORMATIVA"
	IssueBlockingDifference    = "DIFERENCA_BLOQUEANTE"
	IssueNoFinancialData       = "SEM_DADOS_FINANCEIROS"
)

// ConsistencyIssue explains why a declaration deserves attention or cannot be generated.
type ConsistencyIssue struct {
	Kind        string           `json:"tipo"`
	Description string           `json:"descricao"`
	Difference  *decimal.Decimal `json:"diferenca,omitempty"`
	Source      string           `json:"fonte,omitempty"`
	Details     []string         `json:"detalhes,omitempty"`
}

// Declaration is everything a document renderer needs for one client.
type Declaration struct {
	Client         *ClientRecord        `json:"cliente"`
	Aggregates     AggregateResult      `json:"valores"`
	Reconciliation ReconciliationReport `json:"consistencia"`
	Issue          *ConsistencyIssue    `json:"erro_consistencia,omitempty"`
	CanGenerate    bool                 `json:"pode_gerar_pdf"`
	SourceModTime  time.Time            `json:"data_planilha"`
	BuiltAt        time.Time            `json:"gerado_em"`
	FromCache      bool                 `json:"from_cache"`
}

// Document describes a rendered declaration file.
type Document struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"-"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of d, so cached declarations can be handed out
// without sharing the client record, the issue or the breakdown map.
func (d *Declaration) Clone() *Declaration {
	if d == nil {
		return nil
	}
	c := *d
	if d.Client != nil {
		client := *d.Client
		c.Client = &client
	}
	if d.Aggregates.MatchBreakdown != nil {
		c.Aggregates.MatchBreakdown = make(map[string]int, len(d.Aggregates.MatchBreakdown))
		for k, v := range d.Aggregates.MatchBreakdown {
			c.Aggregates.MatchBreakdown[k] = v
		}
	}
	if d.Reconciliation.RecordedDifference != nil {
		diff := *d.Reconciliation.RecordedDifference
		c.Reconciliation.RecordedDifference = &diff
	}
	if d.Issue != nil {
		issue := *d.Issue
		if d.Issue.Difference != nil {
			diff := *d.Issue.Difference
			issue.Difference = &diff
		}
		issue.Details = append([]string(nil), d.Issue.Details...)
		c.Issue = &issue
	}
	return &c
}
