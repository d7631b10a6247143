package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/paywatch/internal/domain"
)

// ReconcileUseCase matches ingested bank movements against outstanding
// invoices and records the outcome as the movement's terminal status.
type ReconcileUseCase struct {
	txManager    TransactionManager
	movementRepo MovementRepository
	invoiceRepo  InvoiceRepository
	historyRepo  HistoryRepository
	currencyRepo CurrencyRepository
	payDocs      PayDocumentIssuer
	idGen        IDGenerator
	retrier      Retrier
	accountName  string
	logger       zerolog.Logger
}

// NewReconcileUseCase creates a new ReconcileUseCase. accountName is the
// configured display name of the receiving bank account. retrier may be nil
// to disable transient-failure retries.
func NewReconcileUseCase(
	txManager TransactionManager,
	movementRepo MovementRepository,
	invoiceRepo InvoiceRepository,
	historyRepo HistoryRepository,
	currencyRepo CurrencyRepository,
	payDocs PayDocumentIssuer,
	idGen IDGenerator,
	retrier Retrier,
	accountName string,
	logger zerolog.Logger,
) *ReconcileUseCase {
	return &ReconcileUseCase{
		txManager:    txManager,
		movementRepo: movementRepo,
		invoiceRepo:  invoiceRepo,
		historyRepo:  historyRepo,
		currencyRepo: currencyRepo,
		payDocs:      payDocs,
		idGen:        idGen,
		retrier:      retrier,
		accountName:  accountName,
		logger:       logger,
	}
}

// Reconcile persists a new bank movement for the fingerprint and assigns its
// status. Ingestion is idempotent: an existing movement for the fingerprint
// is returned unchanged. The movement insert and any invoice updates are
// committed as one transaction; failures inside that unit downgrade the
// movement to SYSTEM_ERROR instead of propagating.
func (uc *ReconcileUseCase) Reconcile(ctx context.Context, fields *domain.MovementFields, fingerprint string) (*domain.BankMovement, error) {
	existing, err := uc.movementRepo.GetByFingerprint(ctx, fingerprint)
	if err == nil {
		uc.logger.Info().
			Str("fingerprint", fingerprint).
			Str("movement_id", existing.ID).
			Msg("movement already exists, skipping")

		return existing, nil
	}
	if !errors.Is(err, domain.ErrMovementNotFound) {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}

	currency, err := uc.resolveCurrency(ctx, fields.CurrencyCode)
	if err != nil {
		return nil, err
	}

	movement := newMovement(uc.idGen.Generate(), fields, fingerprint, currency)
	movement.BankAccountName = uc.accountName

	applied, err := uc.matchAndCommitRetrying(ctx, movement)
	if err != nil {
		uc.logger.Error().Err(err).
			Str("fingerprint", fingerprint).
			Str("variable_symbol", movement.VariableSymbol).
			Msg("reconciliation failed, downgrading movement to SYSTEM_ERROR")

		return uc.downgrade(ctx, movement)
	}

	uc.logger.Info().
		Str("movement_id", applied.ID).
		Str("variable_symbol", applied.VariableSymbol).
		Str("status", string(applied.Status)).
		Msg("movement reconciled")

	return applied, nil
}

// MarkDone is the manual operator action closing a reviewed movement.
// SUCCESS movements need no review and cannot be marked DONE.
func (uc *ReconcileUseCase) MarkDone(ctx context.Context, movementID string) (*domain.BankMovement, error) {
	movement, err := uc.movementRepo.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}

	if movement.Status == domain.MovementSuccess {
		return nil, domain.ErrMovementNotReviewable
	}

	if err := uc.movementRepo.UpdateStatus(ctx, movementID, domain.MovementDone); err != nil {
		return nil, err
	}

	movement.Status = domain.MovementDone

	uc.logger.Info().Str("movement_id", movementID).Msg("movement marked done by operator")

	return movement, nil
}

// resolveCurrency looks up the movement currency, falling back to the system
// default so the recorded currency is never left unset.
func (uc *ReconcileUseCase) resolveCurrency(ctx context.Context, isoCode string) (*domain.Currency, error) {
	currency, err := uc.currencyRepo.ByISOCode(ctx, isoCode)
	if err == nil {
		return currency, nil
	}
	if !errors.Is(err, domain.ErrCurrencyNotFound) {
		return nil, fmt.Errorf("currency lookup: %w", err)
	}

	uc.logger.Warn().Str("iso_code", isoCode).Msg("unknown currency, using default")

	return uc.currencyRepo.Default(ctx)
}

// matchAndCommitRetrying re-runs the matching unit on transient storage
// failures (deadlocks, serialization conflicts). Each attempt starts a fresh
// transaction, so retrying the whole unit is safe.
func (uc *ReconcileUseCase) matchAndCommitRetrying(ctx context.Context, movement *domain.BankMovement) (*domain.BankMovement, error) {
	if uc.retrier == nil {
		return uc.matchAndCommit(ctx, movement)
	}

	var applied *domain.BankMovement
	err := uc.retrier.Retry(ctx, func() error {
		var attemptErr error
		applied, attemptErr = uc.matchAndCommit(ctx, movement)
		return attemptErr
	})

	return applied, err
}

// matchAndCommit evaluates the status rules and applies the movement insert
// plus any invoice side effects atomically.
func (uc *ReconcileUseCase) matchAndCommit(ctx context.Context, movement *domain.BankMovement) (*domain.BankMovement, error) {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	invoice, err := uc.invoiceRepo.FindByVariableSymbolForUpdate(ctx, tx, movement.VariableSymbol)
	if err != nil && !errors.Is(err, domain.ErrInvoiceNotFound) {
		return nil, fmt.Errorf("invoice lookup: %w", err)
	}

	movement.Status = evaluateStatus(invoice, movement)
	movement.InvoiceID = nil
	if invoice != nil {
		movement.InvoiceID = &invoice.ID
	}

	if movement.Status == domain.MovementSuccess {
		if err := uc.settleInvoice(ctx, tx, invoice, movement); err != nil {
			return nil, err
		}
	}

	if err := uc.movementRepo.Create(ctx, tx, movement); err != nil {
		if errors.Is(err, domain.ErrDuplicateFingerprint) {
			// Lost a race with a concurrent run; the winner's record stands.
			return uc.movementRepo.GetByFingerprint(ctx, movement.Fingerprint)
		}
		return nil, fmt.Errorf("insert movement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return movement, nil
}

// evaluateStatus applies the ordered matching rules; the first failing rule
// decides the status.
func evaluateStatus(invoice *domain.Invoice, movement *domain.BankMovement) domain.MovementStatus {
	switch {
	case invoice == nil:
		return domain.MovementBadVariableSymbol
	case invoice.IsPaid():
		return domain.MovementIsPaid
	case invoice.CurrencyISO != movement.CurrencyISO:
		return domain.MovementBadCurrency
	case invoice.FullBankAccount() != movement.BankAccount:
		return domain.MovementBadAccount
	case !invoice.TotalPrice.Equal(movement.Price):
		return domain.MovementBadPrice
	default:
		return domain.MovementSuccess
	}
}

// settleInvoice marks the matched invoice paid, appends the audit entry and
// issues the pay-confirmation document for proformas.
func (uc *ReconcileUseCase) settleInvoice(ctx context.Context, tx Transaction, invoice *domain.Invoice, movement *domain.BankMovement) error {
	if err := uc.invoiceRepo.MarkPaid(ctx, tx, invoice.ID, movement.MovementDate); err != nil {
		return fmt.Errorf("mark invoice paid: %w", err)
	}

	entry := &domain.InvoiceHistory{
		ID:        uc.idGen.Generate(),
		InvoiceID: invoice.ID,
		Description: fmt.Sprintf("paid by bank movement %s (%s %s, VS %s)",
			movement.ID, movement.Price.StringFixed(2), movement.CurrencyISO, movement.VariableSymbol),
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.historyRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("append invoice history: %w", err)
	}

	if invoice.Type == domain.InvoiceProforma {
		if err := uc.payDocs.IssuePayDocument(ctx, invoice); err != nil {
			return fmt.Errorf("issue pay document: %w", err)
		}
	}

	return nil
}

// downgrade records the movement with SYSTEM_ERROR in its own transaction so
// the notification is never lost and the batch continues.
func (uc *ReconcileUseCase) downgrade(ctx context.Context, movement *domain.BankMovement) (*domain.BankMovement, error) {
	movement.Status = domain.MovementSystemError
	movement.InvoiceID = nil

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := uc.movementRepo.Create(ctx, tx, movement); err != nil {
		if errors.Is(err, domain.ErrDuplicateFingerprint) {
			return uc.movementRepo.GetByFingerprint(ctx, movement.Fingerprint)
		}
		return nil, fmt.Errorf("record SYSTEM_ERROR movement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit SYSTEM_ERROR movement: %w", err)
	}

	return movement, nil
}

func newMovement(id string, fields *domain.MovementFields, fingerprint string, currency *domain.Currency) *domain.BankMovement {
	movement := &domain.BankMovement{
		ID:                  id,
		Fingerprint:         fingerprint,
		Status:              domain.MovementNotProcessed,
		BankAccount:         fields.BankAccount,
		CurrencyISO:         currency.ISOCode,
		CurrencyID:          currency.ID,
		CustomerBankAccount: fields.CustomerBankAccount,
		VariableSymbol:      fields.VariableSymbol,
		Price:               fields.Price,
		MovementDate:        fields.Date,
		CreatedAt:           time.Now().UTC(),
	}

	if fields.CustomerName != "" {
		movement.CustomerName = &fields.CustomerName
	}
	if fields.ConstantSymbol != "" {
		movement.ConstantSymbol = &fields.ConstantSymbol
	}
	if fields.Message != "" {
		movement.Message = &fields.Message
	}

	return movement
}
