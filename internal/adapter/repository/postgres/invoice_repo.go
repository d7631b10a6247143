package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/paywatch/internal/domain"
	"github.com/iho/paywatch/internal/usecase"
)

// InvoiceRepository implements usecase.InvoiceRepository. Invoices are owned
// by the invoicing subsystem; this repository touches only the fields the
// reconciliation and escalation engines need.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

const invoiceColumns = `
	id, number, type, due_date, currency_iso, bank_account, bank_code,
	total_price::text, pay_date, closed, status, pay_alert_status,
	accept_status_first, accept_status_second, recipients, created_at
`

// FindByVariableSymbolForUpdate locks and returns the invoice whose number
// equals the variable symbol. The invoice number is the variable symbol a
// payer is asked to put on the transfer.
func (r *InvoiceRepository) FindByVariableSymbolForUpdate(ctx context.Context, tx usecase.Transaction, symbol string) (*domain.Invoice, error) {
	pgxTx := tx.(*Tx).PgxTx()

	row := pgxTx.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoice WHERE number = $1 FOR UPDATE`,
		symbol,
	)

	return scanInvoice(row)
}

// GetByIDForUpdate locks and returns an invoice by ID.
func (r *InvoiceRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Invoice, error) {
	pgxTx := tx.(*Tx).PgxTx()

	row := pgxTx.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoice WHERE id = $1 FOR UPDATE`,
		id,
	)

	return scanInvoice(row)
}

// ListUnpaid returns all open invoices ordered by number.
func (r *InvoiceRepository) ListUnpaid(ctx context.Context) ([]*domain.Invoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoice
		 WHERE pay_date IS NULL AND status <> 'PAID'
		 ORDER BY number`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*domain.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}

	return invoices, rows.Err()
}

// MarkPaid settles an invoice: pay date set, invoice closed, status PAID.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, tx usecase.Transaction, id string, payDate time.Time) error {
	pgxTx := tx.(*Tx).PgxTx()

	tag, err := pgxTx.Exec(ctx,
		`UPDATE invoice SET pay_date = $2, closed = true, status = 'PAID' WHERE id = $1`,
		id, payDate,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceNotFound
	}

	return nil
}

// UpdatePayAlertStatus advances the reminder tier marker.
func (r *InvoiceRepository) UpdatePayAlertStatus(ctx context.Context, tx usecase.Transaction, id string, status domain.PayAlertStatus) error {
	pgxTx := tx.(*Tx).PgxTx()

	tag, err := pgxTx.Exec(ctx,
		`UPDATE invoice SET pay_alert_status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceNotFound
	}

	return nil
}

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var (
		invoice      domain.Invoice
		invoiceType  string
		totalPrice   string
		status       string
		alertStatus  string
		acceptFirst  string
		acceptSecond string
	)

	err := row.Scan(
		&invoice.ID,
		&invoice.Number,
		&invoiceType,
		&invoice.DueDate,
		&invoice.CurrencyISO,
		&invoice.BankAccount,
		&invoice.BankCode,
		&totalPrice,
		&invoice.PayDate,
		&invoice.Closed,
		&status,
		&alertStatus,
		&acceptFirst,
		&acceptSecond,
		&invoice.Recipients,
		&invoice.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}

	invoice.Type = domain.InvoiceType(invoiceType)
	invoice.Status = domain.InvoiceStatus(status)
	invoice.PayAlertStatus = domain.PayAlertStatus(alertStatus)
	invoice.AcceptStatusFirst = domain.AcceptStatus(acceptFirst)
	invoice.AcceptStatusSecond = domain.AcceptStatus(acceptSecond)

	invoice.TotalPrice, err = decimal.NewFromString(totalPrice)
	if err != nil {
		return nil, err
	}

	return &invoice, nil
}
