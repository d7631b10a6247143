package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/paywatch/internal/domain"
)

// AlertConfig holds the escalation schedule. Offsets are signed durations
// applied to "now" to form the tier thresholds (e.g. -72h means an invoice
// becomes due for tier one three days after its due date). Grace offsets are
// added to the invoice due date to produce the reminder's new due date.
type AlertConfig struct {
	FirstOffset  time.Duration
	SecondOffset time.Duration
	ThirdOffset  time.Duration

	FirstGrace  time.Duration
	SecondGrace time.Duration
	ThirdGrace  time.Duration

	// CopyRecipients receive every reminder in addition to the invoice's
	// own recipient list.
	CopyRecipients []string
	FromAddress    string
	ReplyTo        string
}

func (c AlertConfig) offsetFor(tier domain.AlertTier) time.Duration {
	switch tier {
	case domain.TierTwo:
		return c.SecondOffset
	case domain.TierThree:
		return c.ThirdOffset
	default:
		return c.FirstOffset
	}
}

func (c AlertConfig) graceFor(tier domain.AlertTier) time.Duration {
	switch tier {
	case domain.TierTwo:
		return c.SecondGrace
	case domain.TierThree:
		return c.ThirdGrace
	default:
		return c.FirstGrace
	}
}

// AlertOutcome is the per-invoice result of one escalation run.
type AlertOutcome string

const (
	// OutcomeWaiting means no threshold was crossed this run.
	OutcomeWaiting AlertOutcome = "waiting"
	// OutcomeDenied means the invoice is not approved for escalation.
	OutcomeDenied AlertOutcome = "denied"
	// OutcomeError means this invoice's escalation failed and will be
	// retried from the unchanged tier next run.
	OutcomeError AlertOutcome = "error"
	// OutcomeAlertOne through OutcomeAlertThree report the fired tier.
	OutcomeAlertOne   AlertOutcome = "ALERT_ONE"
	OutcomeAlertTwo   AlertOutcome = "ALERT_TWO"
	OutcomeAlertThree AlertOutcome = "ALERT_THREE"
)

func outcomeForTier(tier domain.AlertTier) AlertOutcome {
	switch tier {
	case domain.TierTwo:
		return OutcomeAlertTwo
	case domain.TierThree:
		return OutcomeAlertThree
	default:
		return OutcomeAlertOne
	}
}

// AlertUseCase drives the reminder escalation state machine over unpaid
// invoices. Tiers fire strictly in sequence, at most one per invoice per run.
type AlertUseCase struct {
	txManager   TransactionManager
	invoiceRepo InvoiceRepository
	historyRepo HistoryRepository
	renderer    DocumentRenderer
	mailer      Mailer
	idGen       IDGenerator
	cfg         AlertConfig
	logger      zerolog.Logger

	// now is overridable in tests.
	now func() time.Time
}

// NewAlertUseCase creates a new AlertUseCase.
func NewAlertUseCase(
	txManager TransactionManager,
	invoiceRepo InvoiceRepository,
	historyRepo HistoryRepository,
	renderer DocumentRenderer,
	mailer Mailer,
	idGen IDGenerator,
	cfg AlertConfig,
	logger zerolog.Logger,
) *AlertUseCase {
	return &AlertUseCase{
		txManager:   txManager,
		invoiceRepo: invoiceRepo,
		historyRepo: historyRepo,
		renderer:    renderer,
		mailer:      mailer,
		idGen:       idGen,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one escalation pass over all unpaid invoices. Per-invoice
// failures are isolated; only the initial listing can fail the run.
func (uc *AlertUseCase) Run(ctx context.Context) (*AlertReport, error) {
	invoices, err := uc.invoiceRepo.ListUnpaid(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unpaid invoices: %w", err)
	}

	report := NewAlertReport()
	now := uc.now()

	for _, invoice := range invoices {
		outcome := uc.processInvoice(ctx, invoice, now)
		report.Add(invoice, outcome)
	}

	return report, nil
}

func (uc *AlertUseCase) processInvoice(ctx context.Context, invoice *domain.Invoice, now time.Time) AlertOutcome {
	if !invoice.AlertEligible() {
		uc.logger.Info().
			Str("invoice", invoice.Number).
			Msg("invoice not approved for escalation")
		return OutcomeDenied
	}

	tier, ok := invoice.PayAlertStatus.NextTier()
	if !ok {
		return OutcomeWaiting
	}

	threshold := now.Add(uc.cfg.offsetFor(tier))
	if invoice.DueDate.After(threshold) {
		return OutcomeWaiting
	}

	if err := uc.fireTier(ctx, invoice, tier); err != nil {
		uc.logger.Error().Err(err).
			Str("invoice", invoice.Number).
			Int("tier", int(tier)).
			Msg("escalation failed, tier unchanged")
		return OutcomeError
	}

	uc.logger.Info().
		Str("invoice", invoice.Number).
		Int("tier", int(tier)).
		Msg("reminder tier fired")

	return outcomeForTier(tier)
}

// fireTier renders the reminder and invoice documents, emails every
// recipient and commits the history entries together with the advanced
// pay-alert status. A render failure aborts before any side effect.
func (uc *AlertUseCase) fireTier(ctx context.Context, invoice *domain.Invoice, tier domain.AlertTier) error {
	newDueDate := invoice.DueDate.Add(uc.cfg.graceFor(tier))

	reminderFile, err := uc.renderer.RenderReminder(ctx, tier, invoice, newDueDate)
	if err != nil {
		return fmt.Errorf("render reminder: %w", err)
	}

	invoiceFile, err := uc.renderer.RenderInvoice(ctx, invoice)
	if err != nil {
		return fmt.Errorf("render invoice: %w", err)
	}

	recipients := append(append([]string{}, invoice.Recipients...), uc.cfg.CopyRecipients...)

	// Every recipient gets a dispatch attempt before the status advances.
	dispatched := make([]string, 0, len(recipients))
	var failed []string
	for _, recipient := range recipients {
		if err := uc.sendReminder(ctx, invoice, tier, newDueDate, recipient, reminderFile, invoiceFile); err != nil {
			uc.logger.Error().Err(err).
				Str("invoice", invoice.Number).
				Str("recipient", recipient).
				Msg("reminder dispatch failed")
			failed = append(failed, recipient)
			continue
		}
		dispatched = append(dispatched, recipient)
	}

	return uc.commitTier(ctx, invoice, tier, dispatched, failed)
}

func (uc *AlertUseCase) sendReminder(ctx context.Context, invoice *domain.Invoice, tier domain.AlertTier, newDueDate time.Time, recipient, reminderFile, invoiceFile string) error {
	return uc.mailer.Send(ctx, EmailMessage{
		Template: TemplatePayAlert,
		To:       recipient,
		From:     uc.cfg.FromAddress,
		ReplyTo:  uc.cfg.ReplyTo,
		Subject:  fmt.Sprintf("Payment reminder %d for invoice %s", tier, invoice.Number),
		Variables: map[string]string{
			"invoice_number": invoice.Number,
			"tier":           fmt.Sprintf("%d", tier),
			"due_date":       invoice.DueDate.Format("2006-01-02"),
			"new_due_date":   newDueDate.Format("2006-01-02"),
			"total_price":    invoice.TotalPrice.StringFixed(2) + " " + invoice.CurrencyISO,
		},
		Attachments: []string{reminderFile, invoiceFile},
	})
}

// commitTier re-reads the invoice under lock, appends one history entry per
// attempted recipient and advances the pay-alert status in one transaction.
// Failed dispatches get their own entry so the advanced tier stays
// explainable from the audit log.
func (uc *AlertUseCase) commitTier(ctx context.Context, invoice *domain.Invoice, tier domain.AlertTier, dispatched, failed []string) error {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	locked, err := uc.invoiceRepo.GetByIDForUpdate(ctx, tx, invoice.ID)
	if err != nil {
		return fmt.Errorf("lock invoice: %w", err)
	}

	if locked.PayAlertStatus != invoice.PayAlertStatus {
		// A concurrent run advanced the tier already; nothing to commit.
		return fmt.Errorf("pay-alert status moved from %s to %s during escalation",
			invoice.PayAlertStatus, locked.PayAlertStatus)
	}

	now := uc.now()
	for _, recipient := range dispatched {
		if err := uc.appendHistory(ctx, tx, invoice, now,
			fmt.Sprintf("payment reminder %d sent to %s", tier, recipient)); err != nil {
			return err
		}
	}
	for _, recipient := range failed {
		if err := uc.appendHistory(ctx, tx, invoice, now,
			fmt.Sprintf("payment reminder %d delivery to %s failed", tier, recipient)); err != nil {
			return err
		}
	}

	status := domain.StatusForTier(tier)
	if err := uc.invoiceRepo.UpdatePayAlertStatus(ctx, tx, invoice.ID, status); err != nil {
		return fmt.Errorf("advance pay-alert status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit escalation: %w", err)
	}

	invoice.PayAlertStatus = status

	return nil
}

func (uc *AlertUseCase) appendHistory(ctx context.Context, tx Transaction, invoice *domain.Invoice, now time.Time, description string) error {
	entry := &domain.InvoiceHistory{
		ID:          uc.idGen.Generate(),
		InvoiceID:   invoice.ID,
		Description: description,
		CreatedAt:   now,
	}
	if err := uc.historyRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("append invoice history: %w", err)
	}
	return nil
}
