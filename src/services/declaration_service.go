// backend/src/services/declaration_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/taxdeclaration/backend/src/datasource"
	"github.com/username/taxdeclaration/backend/src/logger"
	"github.com/username/taxdeclaration/backend/src/matching"
	"github.com/username/taxdeclaration/backend/src/models"
	"github.com/username/taxdeclaration/backend/src/processors"
	"github.com/username/taxdeclaration/backend/src/security/validation"
)

const (
	// Result cache keys carry the source modification time, so a workbook
	// change makes every earlier entry unreachable.
	ckDeclaration = "decl_%s_%s_%d"

	DefaultResultCacheTTL = time.Hour
	CacheCleanupInterval  = 10 * time.Minute

	documentFilePrefix = "Declaracao_IR_"
	documentTimeLayout = "20060102_150405"
)

// DeclarationOptions holds the policy knobs of the declaration service.
type DeclarationOptions struct {
	AllowGenerationDespiteDiscrepancy bool
	OutputDir                         string
	ResultCacheTTL                    time.Duration
}

type declarationServiceImpl struct {
	src         datasource.Source
	locator     processors.ClientLocator
	aggregator  processors.AggregationProcessor
	reconciler  processors.ReconciliationProcessor
	renderer    DocumentRenderer
	failures    *FailureTracker
	resultCache *cache.Cache
	opts        DeclarationOptions
	now         func() time.Time
}

func NewDeclarationService(
	src datasource.Source,
	locator processors.ClientLocator,
	aggregator processors.AggregationProcessor,
	reconciler processors.ReconciliationProcessor,
	renderer DocumentRenderer,
	failures *FailureTracker,
	resultCache *cache.Cache,
	opts DeclarationOptions,
) DeclarationService {
	if opts.ResultCacheTTL <= 0 {
		opts.ResultCacheTTL = DefaultResultCacheTTL
	}
	if resultCache == nil {
		resultCache = cache.New(opts.ResultCacheTTL, CacheCleanupInterval)
	}
	return &declarationServiceImpl{
		src:         src,
		locator:     locator,
		aggregator:  aggregator,
		reconciler:  reconciler,
		renderer:    renderer,
		failures:    failures,
		resultCache: resultCache,
		opts:        opts,
		now:         time.Now,
	}
}

func (s *declarationServiceImpl) ValidateIdentifier(raw string) (string, error) {
	return validation.ValidateTaxID(raw)
}

func (s *declarationServiceImpl) LocateClient(query string, mode models.LookupMode) (*models.ClientRecord, error) {
	var (
		client *models.ClientRecord
		err    error
	)
	switch mode {
	case models.ByIdentifier:
		client, err = s.locator.FindByID(query)
	case models.ByName:
		client, err = s.locator.FindByName(query)
	default:
		return nil, fmt.Errorf("unknown lookup mode %q", mode)
	}
	s.track(err)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (s *declarationServiceImpl) ComputeAggregates(ctx context.Context, client *models.ClientRecord) (models.AggregateResult, error) {
	result, err := s.aggregator.Aggregate(ctx, client)
	s.track(err)
	return result, err
}

func (s *declarationServiceImpl) Reconcile(result models.AggregateResult, client *models.ClientRecord) models.ReconciliationReport {
	return s.reconciler.ReconcileResult(result, client)
}

// Assemble applies the generation policy to the computed figures.
func (s *declarationServiceImpl) Assemble(client *models.ClientRecord, result models.AggregateResult, report models.ReconciliationReport) *models.Declaration {
	decl := &models.Declaration{
		Client:         client,
		Aggregates:     result,
		Reconciliation: report,
		CanGenerate:    true,
		BuiltAt:        s.now(),
	}

	switch {
	case !report.Consistent:
		d := report.Discrepancy
		decl.Issue = &models.ConsistencyIssue{
			Kind:        models.IssueInformativeDifference,
			Description: "Diferença identificada entre Union e ERP",
			Difference:  &d,
			Source:      "Saldos calculados",
			Details:     []string{"Esta diferença não impede a geração do documento"},
		}
		if !s.opts.AllowGenerationDespiteDiscrepancy {
			decl.Issue.Kind = models.IssueBlockingDifference
			decl.Issue.Details = []string{"A política atual impede a geração com saldos divergentes"}
			decl.CanGenerate = false
		}
	case report.RecordedDifference != nil:
		decl.Issue = &models.ConsistencyIssue{
			Kind:        models.IssueInformativeDifference,
			Description: "Diferença identificada entre Union e ERP",
			Difference:  report.RecordedDifference,
			Source:      "Base de Clientes",
			Details:     []string{"Esta diferença não impede a geração do documento"},
		}
	}

	if !hasFinancialData(result) {
		decl.Issue = &models.ConsistencyIssue{
			Kind:        models.IssueNoFinancialData,
			Description: "Nenhum dado financeiro encontrado nas planilhas",
			Details: []string{
				"Cliente existe na base de clientes",
				"Mas não possui registros no razão nem no saldo secundário",
			},
		}
		decl.CanGenerate = false
	}
	return decl
}

func (s *declarationServiceImpl) BuildDeclaration(ctx context.Context, query string, mode models.LookupMode) (*models.Declaration, error) {
	key, err := s.normalizeQuery(query, mode)
	if err != nil {
		return nil, err
	}

	modTime, err := s.src.ModTime()
	if err != nil {
		dsErr := &models.DataSourceError{Op: "probe workbook", Err: err}
		s.track(dsErr)
		return nil, dsErr
	}
	cacheKey := fmt.Sprintf(ckDeclaration, mode, key, modTime.UnixNano())
	if cached, found := s.resultCache.Get(cacheKey); found {
		if decl, ok := cached.(*models.Declaration); ok {
			logger.Get().Debug("Declaration served from cache", "mode", mode)
			hit := decl.Clone()
			hit.FromCache = true
			return hit, nil
		}
	}

	client, err := s.LocateClient(query, mode)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := s.ComputeAggregates(ctx, client)
	if err != nil {
		return nil, err
	}
	decl := s.Assemble(client, result, s.Reconcile(result, client))
	decl.SourceModTime = modTime

	logger.Get().Info("Declaration built",
		"row", client.Row,
		"matchReason", client.MatchReason,
		"matchedRecords", result.MatchedRecordCount,
		"balanceRecords", result.BalanceRecordCount,
		"consistent", decl.Reconciliation.Consistent,
		"canGenerate", decl.CanGenerate)

	s.resultCache.Set(cacheKey, decl.Clone(), s.opts.ResultCacheTTL)
	return decl, nil
}

// GenerateDocument renders decl into OutputDir. It refuses declarations the
// policy marked as not generatable.
func (s *declarationServiceImpl) GenerateDocument(ctx context.Context, decl *models.Declaration) (*models.Document, error) {
	if decl == nil || decl.Client == nil {
		return nil, errors.New("generate document: declaration is empty")
	}
	if !decl.CanGenerate {
		if decl.Issue != nil && decl.Issue.Kind == models.IssueBlockingDifference {
			return nil, ErrDiscrepancyBlocked
		}
		return nil, ErrNoFinancialData
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	issuedAt := s.now()
	body, err := s.renderer.Render(decl, issuedAt)
	if err != nil {
		return nil, fmt.Errorf("rendering declaration: %w", err)
	}

	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	filename := DocumentFilename(decl.Client.TaxID, issuedAt, s.renderer.Extension())
	path := filepath.Join(s.opts.OutputDir, filename)

	tmp, err := os.CreateTemp(s.opts.OutputDir, ".render-*")
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("writing document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("writing document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("publishing document: %w", err)
	}

	logger.Get().Info("Declaration document generated", "filename", filename, "size", len(body))
	return &models.Document{
		Filename:  filename,
		Path:      path,
		Size:      int64(len(body)),
		CreatedAt: issuedAt,
	}, nil
}

func (s *declarationServiceImpl) InvalidateResults() {
	s.resultCache.Flush()
	logger.Get().Info("Declaration result cache flushed")
}

// DocumentFilename names a rendered declaration. Clients without a usable tax
// ID get a placeholder so the name stays safe to serve.
func DocumentFilename(taxID string, issuedAt time.Time, ext string) string {
	id := validation.NormalizeTaxID(taxID)
	if id == "" {
		id = "sem_cpf"
	}
	return documentFilePrefix + id + "_" + issuedAt.Format(documentTimeLayout) + ext
}

func (s *declarationServiceImpl) normalizeQuery(query string, mode models.LookupMode) (string, error) {
	switch mode {
	case models.ByIdentifier:
		return s.ValidateIdentifier(query)
	case models.ByName:
		n := matching.NormalizeName(validation.SanitizeQuery(query))
		if n == "" {
			return "", &validation.ValidationError{Input: query, Reason: validation.ErrEmptyQuery}
		}
		return n, nil
	}
	return "", fmt.Errorf("unknown lookup mode %q", mode)
}

// track feeds the operator alert counter. Only data source errors count; any
// other outcome proves the workbook is readable.
func (s *declarationServiceImpl) track(err error) {
	if errors.Is(err, models.ErrDataSource) {
		s.failures.RecordFailure(err)
		return
	}
	s.failures.RecordSuccess()
}

func hasFinancialData(r models.AggregateResult) bool {
	for _, v := range r.Amounts() {
		if !v.IsZero() {
			return true
		}
	}
	return false
}
