package services

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/username/taxdeclaration/backend/src/datasource"
	"github.com/username/taxdeclaration/backend/src/models"
	"github.com/username/taxdeclaration/backend/src/parsers"
	"github.com/username/taxdeclaration/backend/src/processors"
)

const (
	cpfMaria = "52998224725" // revenue and balances agree
	cpfJoao  = "11144477735" // registered, no financial rows
	cpfAna   = "12345678909" // balances disagree by 100
)

func sheetRow(cells map[string]string) []string {
	width := 0
	for col := range cells {
		if i := datasource.ColumnIndex(col); i > width {
			width = i
		}
	}
	row := make([]string, width)
	for col, v := range cells {
		row[datasource.ColumnIndex(col)-1] = v
	}
	return row
}

func workbookFixture() *datasource.MemorySource {
	l := parsers.DefaultLayout()
	return datasource.NewMemorySource(map[string][][]string{
		l.Registry.Sheet: {
			{"Base de clientes"},
			sheetRow(map[string]string{"C": "Cliente", "D": "CPF"}),
			sheetRow(map[string]string{"C": "Maria Silva", "D": "529.982.247-25", "E": "Residencial Jardim", "P": "250000"}),
			sheetRow(map[string]string{"C": "João Souza", "D": "111.444.777-35", "P": "VERIFICAR"}),
			sheetRow(map[string]string{"C": "Ana Lima", "D": "123.456.789-09", "E": "Parque", "P": "180000"}),
		},
		l.Ledger.Sheet: {
			sheetRow(map[string]string{"E": "Nome", "F": "CPF", "G": "Valor", "P": "Categoria"}),
			sheetRow(map[string]string{"E": "Maria Silva", "F": cpfMaria, "G": "1000", "P": "RECEITA BRUTA"}),
			sheetRow(map[string]string{"E": "Maria Silva", "G": "500", "P": "RECEITA BRUTA"}),
			sheetRow(map[string]string{"E": "Ana Lima", "F": cpfAna, "G": "800", "P": "RECEITA BRUTA"}),
			sheetRow(map[string]string{"E": "Ana Lima", "F": cpfAna, "G": "120", "P": "ATIVO CIRCULANTE"}),
		},
		l.Balances.Sheet: {
			sheetRow(map[string]string{"B": "Empreendimento", "F": "CPF", "Q": "Saldo"}),
			sheetRow(map[string]string{"B": "Residencial Jardim", "F": "529.982.247-25", "Q": "1500"}),
			sheetRow(map[string]string{"B": "Parque Sul", "F": cpfAna, "Q": "700"}),
		},
	})
}

// stubRenderer records what it renders.
type stubRenderer struct {
	mu       sync.Mutex
	rendered []string
	fail     error
}

func (r *stubRenderer) Render(decl *models.Declaration, issuedAt time.Time) ([]byte, error) {
	if r.fail != nil {
		return nil, r.fail
	}
	r.mu.Lock()
	r.rendered = append(r.rendered, decl.Client.TaxID)
	r.mu.Unlock()
	var b bytes.Buffer
	fmt.Fprintf(&b, "<p>%s %s %s</p>", decl.Client.DisplayName, decl.Aggregates.GrossRevenue.StringFixed(2), issuedAt.Format(time.RFC3339))
	return b.Bytes(), nil
}

func (r *stubRenderer) Extension() string { return ".html" }

type serviceFixture struct {
	src      *datasource.MemorySource
	ledger   *LedgerCache
	renderer *stubRenderer
	alerts   *MockAlertService
	failures *FailureTracker
	service  DeclarationService
	outDir   string
}

func newServiceFixture(outDir string, allowDiscrepancy bool) *serviceFixture {
	src := workbookFixture()
	reader := parsers.NewSheetReader(src, parsers.DefaultLayout())
	ledger := NewLedgerCache(src, reader, 0)
	renderer := &stubRenderer{}
	alerts := &MockAlertService{}
	failures := NewFailureTracker(alerts, 2)
	svc := NewDeclarationService(
		src,
		processors.NewClientLocator(reader),
		processors.NewAggregationProcessor(ledger, processors.AggregationOptions{}),
		processors.NewReconciliationProcessor(processors.DefaultTolerance),
		renderer,
		failures,
		nil,
		DeclarationOptions{AllowGenerationDespiteDiscrepancy: allowDiscrepancy, OutputDir: outDir},
	)
	return &serviceFixture{
		src:      src,
		ledger:   ledger,
		renderer: renderer,
		alerts:   alerts,
		failures: failures,
		service:  svc,
		outDir:   outDir,
	}
}
