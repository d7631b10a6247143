package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/paywatch/internal/domain"
	"github.com/iho/paywatch/internal/usecase"
	"github.com/iho/paywatch/internal/usecase/mocks"
)

type reconcileFixture struct {
	txManager    *mocks.MockTransactionManager
	movementRepo *mocks.MockMovementRepository
	invoiceRepo  *mocks.MockInvoiceRepository
	historyRepo  *mocks.MockHistoryRepository
	currencyRepo *mocks.MockCurrencyRepository
	payDocs      *mocks.MockPayDocumentIssuer
	uc           *usecase.ReconcileUseCase
}

func newReconcileFixture() *reconcileFixture {
	f := &reconcileFixture{
		txManager:    mocks.NewMockTransactionManager(),
		movementRepo: mocks.NewMockMovementRepository(),
		invoiceRepo:  mocks.NewMockInvoiceRepository(),
		historyRepo:  mocks.NewMockHistoryRepository(),
		currencyRepo: mocks.NewMockCurrencyRepository(),
		payDocs:      &mocks.MockPayDocumentIssuer{},
	}

	f.uc = usecase.NewReconcileUseCase(
		f.txManager,
		f.movementRepo,
		f.invoiceRepo,
		f.historyRepo,
		f.currencyRepo,
		f.payDocs,
		mocks.NewMockIDGenerator(),
		nil,
		"main account",
		zerolog.Nop(),
	)

	return f
}

func testInvoice(number string) *domain.Invoice {
	return &domain.Invoice{
		ID:                 "inv-" + number,
		Number:             number,
		Type:               domain.InvoiceRegular,
		DueDate:            time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CurrencyISO:        "CZK",
		BankAccount:        "2900123456",
		BankCode:           "2010",
		TotalPrice:         decimal.RequireFromString("1234.50"),
		Status:             domain.InvoiceStatusNew,
		PayAlertStatus:     domain.AlertNone,
		AcceptStatusFirst:  domain.AcceptAccepted,
		AcceptStatusSecond: domain.AcceptAccepted,
		Recipients:         []string{"customer@example.com"},
	}
}

func testFields(symbol string) *domain.MovementFields {
	return &domain.MovementFields{
		Date:                time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		BankAccount:         "2900123456/2010",
		Price:               decimal.RequireFromString("1234.50"),
		CurrencyCode:        "CZK",
		CustomerBankAccount: "123456789/0800",
		CustomerName:        "Jan Novák",
		VariableSymbol:      symbol,
	}
}

func TestReconcile_Success(t *testing.T) {
	f := newReconcileFixture()
	invoice := testInvoice("2026001")
	f.invoiceRepo.Put(invoice)

	movement, err := f.uc.Reconcile(context.Background(), testFields("2026001"), "fp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if movement.Status != domain.MovementSuccess {
		t.Errorf("expected SUCCESS, got %s", movement.Status)
	}
	if movement.InvoiceID == nil || *movement.InvoiceID != invoice.ID {
		t.Errorf("expected movement linked to %s", invoice.ID)
	}
	if movement.BankAccountName != "main account" {
		t.Errorf("expected configured account name, got %q", movement.BankAccountName)
	}
	if !invoice.IsPaid() {
		t.Error("expected invoice marked paid")
	}
	if invoice.PayDate == nil || !invoice.PayDate.Equal(movement.MovementDate) {
		t.Error("expected pay date set to movement date")
	}
	if len(f.historyRepo.Entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(f.historyRepo.Entries))
	}
	if len(f.payDocs.Issued) != 0 {
		t.Error("regular invoice must not get a pay document")
	}
	if len(f.txManager.Transactions) != 1 || !f.txManager.Transactions[0].Committed {
		t.Error("expected one committed transaction")
	}
}

func TestReconcile_ProformaIssuesPayDocument(t *testing.T) {
	f := newReconcileFixture()
	invoice := testInvoice("2026002")
	invoice.Type = domain.InvoiceProforma
	f.invoiceRepo.Put(invoice)

	movement, err := f.uc.Reconcile(context.Background(), testFields("2026002"), "fp-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if movement.Status != domain.MovementSuccess {
		t.Errorf("expected SUCCESS, got %s", movement.Status)
	}
	if len(f.payDocs.Issued) != 1 || f.payDocs.Issued[0] != invoice.ID {
		t.Errorf("expected pay document for %s, got %v", invoice.ID, f.payDocs.Issued)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newReconcileFixture()
	f.invoiceRepo.Put(testInvoice("2026001"))

	first, err := f.uc.Reconcile(context.Background(), testFields("2026001"), "fp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := f.uc.Reconcile(context.Background(), testFields("2026001"), "fp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected same movement on replay, got %s and %s", first.ID, second.ID)
	}
	if len(f.movementRepo.All()) != 1 {
		t.Errorf("expected exactly one stored movement, got %d", len(f.movementRepo.All()))
	}
	if len(f.historyRepo.Entries) != 1 {
		t.Errorf("replay must not append history, got %d entries", len(f.historyRepo.Entries))
	}
}

func TestReconcile_StatusRules(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*reconcileFixture)
		fields     func() *domain.MovementFields
		wantStatus domain.MovementStatus
		wantLinked bool
	}{
		{
			name:       "unknown variable symbol",
			setup:      func(f *reconcileFixture) {},
			fields:     func() *domain.MovementFields { return testFields("9999999") },
			wantStatus: domain.MovementBadVariableSymbol,
		},
		{
			name: "invoice already paid",
			setup: func(f *reconcileFixture) {
				invoice := testInvoice("2026001")
				paid := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
				invoice.PayDate = &paid
				invoice.Status = domain.InvoiceStatusPaid
				f.invoiceRepo.Put(invoice)
			},
			fields:     func() *domain.MovementFields { return testFields("2026001") },
			wantStatus: domain.MovementIsPaid,
			wantLinked: true,
		},
		{
			name: "currency mismatch",
			setup: func(f *reconcileFixture) {
				f.invoiceRepo.Put(testInvoice("2026001"))
			},
			fields: func() *domain.MovementFields {
				fields := testFields("2026001")
				fields.CurrencyCode = "EUR"
				return fields
			},
			wantStatus: domain.MovementBadCurrency,
			wantLinked: true,
		},
		{
			name: "wrong receiving account",
			setup: func(f *reconcileFixture) {
				f.invoiceRepo.Put(testInvoice("2026001"))
			},
			fields: func() *domain.MovementFields {
				fields := testFields("2026001")
				fields.BankAccount = "111111111/0100"
				return fields
			},
			wantStatus: domain.MovementBadAccount,
			wantLinked: true,
		},
		{
			name: "amount mismatch",
			setup: func(f *reconcileFixture) {
				f.invoiceRepo.Put(testInvoice("2026001"))
			},
			fields: func() *domain.MovementFields {
				fields := testFields("2026001")
				fields.Price = decimal.RequireFromString("1000.00")
				return fields
			},
			wantStatus: domain.MovementBadPrice,
			wantLinked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcileFixture()
			tt.setup(f)

			movement, err := f.uc.Reconcile(context.Background(), tt.fields(), "fp-x")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if movement.Status != tt.wantStatus {
				t.Errorf("expected %s, got %s", tt.wantStatus, movement.Status)
			}
			if tt.wantLinked && movement.InvoiceID == nil {
				t.Error("expected movement linked to the matched invoice")
			}
			if !tt.wantLinked && movement.InvoiceID != nil {
				t.Error("expected no invoice link")
			}
			// A mismatch never touches the invoice.
			if len(f.historyRepo.Entries) != 0 {
				t.Errorf("expected no history entries, got %d", len(f.historyRepo.Entries))
			}
			if len(f.payDocs.Issued) != 0 {
				t.Error("expected no pay documents")
			}
		})
	}
}

func TestReconcile_MismatchLeavesInvoiceOpen(t *testing.T) {
	f := newReconcileFixture()
	invoice := testInvoice("2026001")
	f.invoiceRepo.Put(invoice)

	fields := testFields("2026001")
	fields.CurrencyCode = "EUR"

	if _, err := f.uc.Reconcile(context.Background(), fields, "fp-3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if invoice.IsPaid() {
		t.Error("currency mismatch must not settle the invoice")
	}
	if invoice.Status != domain.InvoiceStatusNew {
		t.Errorf("expected status NEW, got %s", invoice.Status)
	}
}

func TestReconcile_UnknownCurrencyUsesDefault(t *testing.T) {
	f := newReconcileFixture()

	fields := testFields("2026001")
	fields.CurrencyCode = "NOK"

	movement, err := f.uc.Reconcile(context.Background(), fields, "fp-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if movement.CurrencyISO != "CZK" {
		t.Errorf("expected default currency CZK, got %s", movement.CurrencyISO)
	}
	if movement.CurrencyID != f.currencyRepo.DefaultCurrency.ID {
		t.Errorf("expected default currency id, got %s", movement.CurrencyID)
	}
}

func TestReconcile_CommitFailureDowngradesToSystemError(t *testing.T) {
	f := newReconcileFixture()
	f.invoiceRepo.Put(testInvoice("2026001"))

	begins := 0
	f.txManager.BeginFunc = func(ctx context.Context) (usecase.Transaction, error) {
		begins++
		if begins == 1 {
			return &mocks.MockTransaction{
				CommitFunc: func(ctx context.Context) error { return errors.New("connection reset") },
			}, nil
		}
		return &mocks.MockTransaction{}, nil
	}

	movement, err := f.uc.Reconcile(context.Background(), testFields("2026001"), "fp-5")
	if err != nil {
		t.Fatalf("downgrade path must not propagate the commit error, got %v", err)
	}

	if movement.Status != domain.MovementSystemError {
		t.Errorf("expected SYSTEM_ERROR, got %s", movement.Status)
	}
	if movement.InvoiceID != nil {
		t.Error("SYSTEM_ERROR movement must not keep an invoice link")
	}
	if begins != 2 {
		t.Errorf("expected a fresh transaction for the downgrade, saw %d begins", begins)
	}
}

func TestMarkDone(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.MovementStatus
		wantErr error
	}{
		{name: "bad symbol movement closes", status: domain.MovementBadVariableSymbol},
		{name: "system error movement closes", status: domain.MovementSystemError},
		{name: "success movement is not reviewable", status: domain.MovementSuccess, wantErr: domain.ErrMovementNotReviewable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcileFixture()
			f.movementRepo.CreateFunc = nil

			stored := &domain.BankMovement{ID: "mov-1", Fingerprint: "fp-9", Status: tt.status}
			tx := &mocks.MockTransaction{}
			if err := f.movementRepo.Create(context.Background(), tx, stored); err != nil {
				t.Fatalf("seed movement: %v", err)
			}

			movement, err := f.uc.MarkDone(context.Background(), "mov-1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if stored.Status != tt.status {
					t.Errorf("status must stay %s, got %s", tt.status, stored.Status)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if movement.Status != domain.MovementDone {
				t.Errorf("expected DONE, got %s", movement.Status)
			}
		})
	}
}
