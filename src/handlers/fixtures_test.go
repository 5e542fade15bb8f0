package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/username/taxdeclaration/backend/src/database"
	"github.com/username/taxdeclaration/backend/src/datasource"
	"github.com/username/taxdeclaration/backend/src/parsers"
	"github.com/username/taxdeclaration/backend/src/processors"
	"github.com/username/taxdeclaration/backend/src/report"
	"github.com/username/taxdeclaration/backend/src/security"
	"github.com/username/taxdeclaration/backend/src/services"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminUser     = "admin"
	adminPassword = "s3nha-forte"
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

type testApp struct {
	src      *datasource.MemorySource
	ledger   *services.LedgerCache
	failures *services.FailureTracker
	tokens   *security.TokenService
	outDir   string
	handler  http.Handler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newLimitedTestApp(t, RouteLimits{})
}

// newLimitedTestApp builds the test stack with the given rate limits.
func newLimitedTestApp(t *testing.T, limits RouteLimits) *testApp {
	t.Helper()
	l := parsers.DefaultLayout()
	src := datasource.NewMemorySource(map[string][][]string{
		l.Registry.Sheet: {
			{"Base de clientes"},
			{"Cliente"},
			sheetRow(map[string]string{"C": "Maria Silva", "D": "529.982.247-25", "E": "Residencial Jardim", "P": "250000"}),
			sheetRow(map[string]string{"C": "João Souza", "D": "111.444.777-35"}),
		},
		l.Ledger.Sheet: {
			{"Cabeçalho"},
			sheetRow(map[string]string{"E": "Maria Silva", "F": "52998224725", "G": "1000", "P": "RECEITA BRUTA"}),
			sheetRow(map[string]string{"E": "Maria Silva", "G": "500", "P": "RECEITA BRUTA"}),
		},
		l.Balances.Sheet: {
			{"Cabeçalho"},
			sheetRow(map[string]string{"B": "Residencial Jardim", "F": "52998224725", "Q": "1500"}),
		},
	})

	outDir := t.TempDir()
	reader := parsers.NewSheetReader(src, l)
	ledger := services.NewLedgerCache(src, reader, 0)
	failures := services.NewFailureTracker(&services.MockAlertService{}, 3)
	decls := services.NewDeclarationService(
		src,
		processors.NewClientLocator(reader),
		processors.NewAggregationProcessor(ledger, processors.AggregationOptions{}),
		processors.NewReconciliationProcessor(processors.DefaultTolerance),
		report.NewHTMLRenderer(report.Issuer{CompanyName: "Construtora Exemplo", CalendarYear: 2024}),
		failures,
		nil,
		services.DeclarationOptions{AllowGenerationDespiteDiscrepancy: true, OutputDir: outDir},
	)

	db, err := database.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	tokens := security.NewTokenService("0123456789abcdef0123456789abcdef", time.Minute)
	tasks := services.NewTaskService(db, decls, tokens, services.TaskOptions{Workers: 1, OutputDir: outDir})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tasks.Shutdown(ctx)
		db.Close()
	})

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	dh := NewDeclarationHandler(decls, tasks, tokens, outDir)
	ah := NewAdminHandler(security.NewAdminAuth(adminUser, string(hash)), ledger, decls)
	hh := NewHealthHandler(HealthDeps{Source: src, DB: db, Ledger: ledger, Tasks: tasks, Failures: failures})

	mux := http.NewServeMux()
	RegisterRoutes(mux, dh, ah, hh, NewRateLimiter(), limits)

	return &testApp{
		src:      src,
		ledger:   ledger,
		failures: failures,
		tokens:   tokens,
		outDir:   outDir,
		handler:  SecurityHeaders(CORS([]string{"http://localhost:3000"})(mux)),
	}
}

func (a *testApp) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, r)
	return rec
}

func (a *testApp) postJSON(path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return a.do(r)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON (%d): %s", rec.Code, rec.Body.String())
	}
	return body
}
