package render_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/paywatch/internal/adapter/render"
	"github.com/iho/paywatch/internal/domain"
)

func testInvoice() *domain.Invoice {
	return &domain.Invoice{
		ID:          "inv-1",
		Number:      "2026001",
		Type:        domain.InvoiceRegular,
		DueDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CurrencyISO: "CZK",
		BankAccount: "2900123456",
		BankCode:    "2010",
		TotalPrice:  decimal.RequireFromString("1234.50"),
	}
}

func TestRenderInvoice(t *testing.T) {
	r, err := render.NewFileRenderer(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := r.RenderInvoice(context.Background(), testInvoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"INVOICE 2026001", "2026-03-01", "1234.50 CZK", "2900123456/2010"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("document missing %q:\n%s", want, content)
		}
	}
}

func TestRenderReminder(t *testing.T) {
	r, err := render.NewFileRenderer(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	newDue := time.Date(2026, 3, 27, 0, 0, 0, 0, time.UTC)

	path, err := r.RenderReminder(context.Background(), domain.TierTwo, testInvoice(), newDue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"PAYMENT REMINDER 2", "2026001", "2026-03-27"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("document missing %q:\n%s", want, content)
		}
	}
}

func TestIssuePayDocument(t *testing.T) {
	dir := t.TempDir()
	r, err := render.NewFileRenderer(dir)
	if err != nil {
		t.Fatal(err)
	}

	invoice := testInvoice()
	invoice.Type = domain.InvoiceProforma

	if err := r.IssuePayDocument(context.Background(), invoice); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(dir + "/paydoc-2026001.txt")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(content), "PAYMENT CONFIRMATION") {
		t.Errorf("unexpected document:\n%s", content)
	}
}
