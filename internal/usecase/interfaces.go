package usecase

import (
	"context"
	"time"

	"github.com/iho/paywatch/internal/domain"
)

// MovementRepository defines data access for bank movements.
type MovementRepository interface {
	// Create inserts a movement. Returns domain.ErrDuplicateFingerprint when
	// a movement with the same fingerprint already exists.
	Create(ctx context.Context, tx Transaction, movement *domain.BankMovement) error
	GetByID(ctx context.Context, id string) (*domain.BankMovement, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.BankMovement, error)
	UpdateStatus(ctx context.Context, id string, status domain.MovementStatus) error
}

// InvoiceRepository defines the subset of invoice data access the engines need.
type InvoiceRepository interface {
	FindByVariableSymbolForUpdate(ctx context.Context, tx Transaction, symbol string) (*domain.Invoice, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Invoice, error)
	ListUnpaid(ctx context.Context) ([]*domain.Invoice, error)
	MarkPaid(ctx context.Context, tx Transaction, id string, payDate time.Time) error
	UpdatePayAlertStatus(ctx context.Context, tx Transaction, id string, status domain.PayAlertStatus) error
}

// HistoryRepository defines data access for the append-only invoice history log.
type HistoryRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.InvoiceHistory) error
}

// CurrencyRepository defines data access for currency reference rows.
type CurrencyRepository interface {
	ByISOCode(ctx context.Context, code string) (*domain.Currency, error)
	Default(ctx context.Context) (*domain.Currency, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier re-runs an operation on transient storage failures.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// MailMessage is a fetched mailbox message reduced to what ingestion needs.
type MailMessage struct {
	MessageID string
	From      string
	Body      string
}

// MailboxSession is an open, sequential mailbox connection. Close must be
// called on every exit path.
type MailboxSession interface {
	Search(ctx context.Context, since time.Time) ([]string, error)
	Fetch(ctx context.Context, id string) (*MailMessage, error)
	Close() error
}

// Mailbox opens mailbox sessions.
type Mailbox interface {
	Connect(ctx context.Context) (MailboxSession, error)
}

// SeenStore is a fast-path guard over already-processed fingerprints.
// The movement table's unique constraint remains the source of truth.
type SeenStore interface {
	// Seen reports whether the fingerprint was already recorded. It never
	// records anything itself.
	Seen(ctx context.Context, fingerprint string) (bool, error)
	// Mark records the fingerprint for ttl. Callers mark only after the
	// movement has been persisted, so a failed block stays retryable.
	Mark(ctx context.Context, fingerprint string, ttl time.Duration) error
}

// DocumentRenderer renders invoice and reminder documents to files.
type DocumentRenderer interface {
	RenderInvoice(ctx context.Context, invoice *domain.Invoice) (string, error)
	RenderReminder(ctx context.Context, tier domain.AlertTier, invoice *domain.Invoice, newDueDate time.Time) (string, error)
}

// PayDocumentIssuer generates the payment-confirmation document for a paid
// proforma invoice.
type PayDocumentIssuer interface {
	IssuePayDocument(ctx context.Context, invoice *domain.Invoice) error
}

// EmailTemplate selects the message template used for an outgoing email.
type EmailTemplate string

const (
	TemplatePayAlert EmailTemplate = "pay_alert"
)

// EmailMessage is one outgoing email with attachments.
type EmailMessage struct {
	Template    EmailTemplate
	To          string
	From        string
	ReplyTo     string
	Subject     string
	Variables   map[string]string
	Attachments []string
}

// Mailer dispatches emails.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// Reconciler processes one parsed movement. Satisfied by ReconcileUseCase.
type Reconciler interface {
	Reconcile(ctx context.Context, fields *domain.MovementFields, fingerprint string) (*domain.BankMovement, error)
}
