// Package report renders declarations as standalone HTML documents. The body
// is composed as Markdown and converted with goldmark; raw HTML coming from
// workbook cells is never emitted.
package report

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/username/taxdeclaration/backend/src/models"
	"github.com/username/taxdeclaration/backend/src/security/validation"
	"github.com/username/taxdeclaration/backend/src/utils"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const unknownSaleValue = "Verificar"

// Issuer identifies the company signing the declaration. Client rows that
// carry their own company name and CNPJ take precedence in section 1.
type Issuer struct {
	CompanyName  string
	CompanyCNPJ  string
	CalendarYear int
}

// HTMLRenderer renders declarations to HTML.
type HTMLRenderer struct {
	issuer Issuer
	md     goldmark.Markdown
}

func NewHTMLRenderer(issuer Issuer) *HTMLRenderer {
	if issuer.CalendarYear == 0 {
		issuer.CalendarYear = time.Now().Year() - 1
	}
	return &HTMLRenderer{
		issuer: issuer,
		md:     goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

func (r *HTMLRenderer) Extension() string { return ".html" }

// Render produces the full HTML page for decl, dated issuedAt.
func (r *HTMLRenderer) Render(decl *models.Declaration, issuedAt time.Time) ([]byte, error) {
	if decl == nil || decl.Client == nil {
		return nil, fmt.Errorf("render: declaration has no client")
	}

	var body bytes.Buffer
	if err := r.md.Convert([]byte(r.Markdown(decl, issuedAt)), &body); err != nil {
		return nil, fmt.Errorf("render: converting markdown: %w", err)
	}

	title := fmt.Sprintf("Informe de Rendimentos %d - %s", r.issuer.CalendarYear, decl.Client.DisplayName)
	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html lang=\"pt-BR\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(title))
	page.WriteString(pageStyle)
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// Markdown composes the declaration body. Every value taken from the
// workbook is escaped.
func (r *HTMLRenderer) Markdown(decl *models.Declaration, issuedAt time.Time) string {
	c := decl.Client
	var b strings.Builder

	fmt.Fprintf(&b, "# ANO-CALENDÁRIO DE %d\n\n", r.issuer.CalendarYear)
	b.WriteString("## IMPOSTO DE RENDA - PESSOA FÍSICA\n\n")

	companyName, companyCNPJ := c.CompanyName, c.CompanyTaxID
	if companyName == "" {
		companyName = r.issuer.CompanyName
	}
	if companyCNPJ == "" {
		companyCNPJ = r.issuer.CompanyCNPJ
	}
	b.WriteString("### 1. PESSOA JURÍDICA:\n\n")
	fmt.Fprintf(&b, "Nome Empresarial: %s - %s\n\n", escape(companyName), escape(companyCNPJ))

	b.WriteString("### 2. FONTE PAGADORA PESSOA FÍSICA:\n\n")
	b.WriteString("| Nome | CPF |\n|---|---|\n")
	fmt.Fprintf(&b, "| %s | %s |\n\n", escape(c.DisplayName), escape(displayTaxID(c)))

	b.WriteString("### 3. DADOS DO BEM:\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Produto | %s |\n", escape(joinNonEmpty(" - ", c.DevelopmentName, c.UnitLabel)))
	fmt.Fprintf(&b, "| Endereço | %s |\n", escape(formatAddress(c.Address)))
	fmt.Fprintf(&b, "| Valor do Imóvel | %s |\n\n", escape(saleValue(c)))

	b.WriteString("### 4. INFORME DE PAGAMENTOS EFETUADOS PARA FINS DE IMPOSTO DE RENDA:\n\n")
	fmt.Fprintf(&b, "| ESPECIFICAÇÃO | VALORES PAGOS EM %d |\n|---|---:|\n", r.issuer.CalendarYear)
	fmt.Fprintf(&b, "| RECEITA | %s |\n", escape(utils.FormatBRL(decl.Aggregates.GrossRevenue)))
	fmt.Fprintf(&b, "| DESPESAS ACESSÓRIAS | %s |\n\n", escape(utils.FormatBRL(decl.Aggregates.AncillaryExpenses)))

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "Emitido em %s\n\n", utils.FormatLongDatePT(issuedAt))
	b.WriteString("\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\\_\n\n")
	fmt.Fprintf(&b, "%s\n", escape(r.issuer.CompanyName))
	return b.String()
}

func displayTaxID(c *models.ClientRecord) string {
	if validation.IsValidTaxID(c.TaxID) {
		return validation.FormatTaxID(c.TaxID)
	}
	return c.RawTaxID
}

func saleValue(c *models.ClientRecord) string {
	if !c.SaleValueKnown() || c.SaleValue.Decimal.IsZero() {
		return unknownSaleValue
	}
	return utils.FormatBRL(c.SaleValue.Decimal)
}

func formatAddress(a models.Address) string {
	street := joinNonEmpty(", ", a.Street, a.Number)
	city := joinNonEmpty(" - ", a.City, a.State)
	return joinNonEmpty(", ", joinNonEmpty(" - ", street, a.Neighborhood), city)
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// escape backslash-escapes ASCII punctuation and flattens line breaks so cell
// text cannot open Markdown constructs or break a table row.
func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 0x80 && isASCIIPunct(byte(r)):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isASCIIPunct(c byte) bool {
	return (c >= '!' && c <= '/') || (c >= ':' && c <= '@') || (c >= '[' && c <= '`') || (c >= '{' && c <= '~')
}

const pageStyle = `<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 10pt; max-width: 780px; margin: 40px auto; }
h1, h2 { text-align: center; margin: 4px 0; }
h3 { margin-top: 24px; }
table { width: 100%; border-collapse: collapse; }
th, td { border: 1px solid #000; padding: 8px; text-align: left; }
hr { border: 0; border-top: 1px solid #d9d9d9; margin-top: 30px; }
</style>
`
