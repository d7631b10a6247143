package usecase_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/paywatch/internal/domain"
	"github.com/iho/paywatch/internal/usecase"
)

func TestSweepReportRender(t *testing.T) {
	report := usecase.NewSweepReport()
	report.Messages = 1
	report.Blocks = 2
	report.Record(&domain.BankMovement{
		ID:             "mov-1",
		VariableSymbol: "2026001",
		Price:          decimal.RequireFromString("1234.50"),
		CurrencyISO:    "CZK",
		Status:         domain.MovementSuccess,
	})
	report.Record(&domain.BankMovement{
		ID:             "mov-2",
		VariableSymbol: "9999999",
		Price:          decimal.RequireFromString("500.00"),
		CurrencyISO:    "CZK",
		Status:         domain.MovementBadVariableSymbol,
	})

	if report.ByStatus[domain.MovementSuccess] != 1 || report.ByStatus[domain.MovementBadVariableSymbol] != 1 {
		t.Errorf("unexpected status tally: %v", report.ByStatus)
	}

	var out strings.Builder
	report.Render(&out)

	for _, want := range []string{"mov-1", "2026001", "1234.50 CZK", "SUCCESS", "BAD_VARIABLE_SYMBOL", "blocks=2"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("rendered report missing %q:\n%s", want, out.String())
		}
	}
}

func TestAlertReportTally(t *testing.T) {
	report := usecase.NewAlertReport()
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	report.Add(&domain.Invoice{Number: "2026001", DueDate: due}, usecase.OutcomeAlertOne)
	report.Add(&domain.Invoice{Number: "2026002", DueDate: due}, usecase.OutcomeAlertThree)
	report.Add(&domain.Invoice{Number: "2026003", DueDate: due}, usecase.OutcomeWaiting)
	report.Add(&domain.Invoice{Number: "2026004", DueDate: due}, usecase.OutcomeDenied)
	report.Add(&domain.Invoice{Number: "2026005", DueDate: due}, usecase.OutcomeError)

	if report.Fired != 2 || report.Waiting != 1 || report.Denied != 1 || report.Errors != 1 {
		t.Errorf("unexpected tally: %+v", report)
	}

	var out strings.Builder
	report.Render(&out)

	for _, want := range []string{"2026001", "ALERT_ONE", "2026-03-01", "fired=2"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("rendered report missing %q:\n%s", want, out.String())
		}
	}
}
