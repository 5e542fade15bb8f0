package services

import (
	"context"
	"time"

	"github.com/username/taxdeclaration/backend/src/models"
)

// DeclarationService is the entry point of the web and task layers into the
// lookup, aggregation and reconciliation core.
type DeclarationService interface {
	ValidateIdentifier(raw string) (string, error)
	LocateClient(query string, mode models.LookupMode) (*models.ClientRecord, error)
	ComputeAggregates(ctx context.Context, client *models.ClientRecord) (models.AggregateResult, error)
	Reconcile(result models.AggregateResult, client *models.ClientRecord) models.ReconciliationReport
	Assemble(client *models.ClientRecord, result models.AggregateResult, report models.ReconciliationReport) *models.Declaration

	// BuildDeclaration runs every step for one query, memoized per source version.
	// Each call returns its own copy.
	BuildDeclaration(ctx context.Context, query string, mode models.LookupMode) (*models.Declaration, error)
	GenerateDocument(ctx context.Context, decl *models.Declaration) (*models.Document, error)
	InvalidateResults()
}

// DocumentRenderer turns a declaration into a document body.
type DocumentRenderer interface {
	Render(decl *models.Declaration, issuedAt time.Time) ([]byte, error)
	Extension() string
}
