// Package render writes invoice, reminder and pay-confirmation documents as
// plain-text files. The engines treat document rendering as an opaque
// "render to file" capability; this is the concrete stand-in.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/iho/paywatch/internal/domain"
)

var invoiceTmpl = template.Must(template.New("invoice").Parse(
	`INVOICE {{.Number}}
type: {{.Type}}
due date: {{.DueDate.Format "2006-01-02"}}
amount: {{.TotalPrice.StringFixed 2}} {{.CurrencyISO}}
account: {{.BankAccount}}/{{.BankCode}}
variable symbol: {{.Number}}
`))

var reminderTmpl = template.Must(template.New("reminder").Parse(
	`PAYMENT REMINDER {{.Tier}}
invoice: {{.Invoice.Number}}
original due date: {{.Invoice.DueDate.Format "2006-01-02"}}
new due date: {{.NewDueDate.Format "2006-01-02"}}
amount due: {{.Invoice.TotalPrice.StringFixed 2}} {{.Invoice.CurrencyISO}}
`))

var payDocumentTmpl = template.Must(template.New("paydoc").Parse(
	`PAYMENT CONFIRMATION
proforma invoice: {{.Number}}
amount: {{.TotalPrice.StringFixed 2}} {{.CurrencyISO}}
`))

// FileRenderer implements usecase.DocumentRenderer and
// usecase.PayDocumentIssuer over a configured output directory.
type FileRenderer struct {
	outputDir string
}

// NewFileRenderer creates a FileRenderer, ensuring the output directory exists.
func NewFileRenderer(outputDir string) (*FileRenderer, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileRenderer{outputDir: outputDir}, nil
}

// RenderInvoice writes the invoice document and returns its path.
func (r *FileRenderer) RenderInvoice(ctx context.Context, invoice *domain.Invoice) (string, error) {
	path := filepath.Join(r.outputDir, fmt.Sprintf("invoice-%s.txt", invoice.Number))
	return path, r.writeTemplate(path, invoiceTmpl, invoice)
}

// RenderReminder writes the tier reminder document and returns its path.
func (r *FileRenderer) RenderReminder(ctx context.Context, tier domain.AlertTier, invoice *domain.Invoice, newDueDate time.Time) (string, error) {
	path := filepath.Join(r.outputDir, fmt.Sprintf("reminder-%d-%s.txt", tier, invoice.Number))

	data := struct {
		Tier       domain.AlertTier
		Invoice    *domain.Invoice
		NewDueDate time.Time
	}{tier, invoice, newDueDate}

	return path, r.writeTemplate(path, reminderTmpl, data)
}

// IssuePayDocument writes the payment confirmation for a paid proforma.
func (r *FileRenderer) IssuePayDocument(ctx context.Context, invoice *domain.Invoice) error {
	path := filepath.Join(r.outputDir, fmt.Sprintf("paydoc-%s.txt", invoice.Number))
	return r.writeTemplate(path, payDocumentTmpl, invoice)
}

func (r *FileRenderer) writeTemplate(path string, tmpl *template.Template, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}

	return f.Close()
}
