package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/paywatch/internal/domain"
	"github.com/iho/paywatch/internal/usecase"
)

const pgErrUniqueViolation = "23505"

// MovementRepository implements usecase.MovementRepository.
type MovementRepository struct {
	pool *pgxpool.Pool
}

// NewMovementRepository creates a new MovementRepository.
func NewMovementRepository(pool *pgxpool.Pool) *MovementRepository {
	return &MovementRepository{pool: pool}
}

const movementColumns = `
	id, fingerprint, status, invoice_id, bank_account_name, bank_account,
	currency_iso, currency_id, customer_bank_account, customer_name,
	variable_symbol, constant_symbol, message, price::text, movement_date, created_at
`

// Create inserts a movement inside the given transaction. The fingerprint
// column carries a unique constraint; a violation maps to
// domain.ErrDuplicateFingerprint.
func (r *MovementRepository) Create(ctx context.Context, tx usecase.Transaction, movement *domain.BankMovement) error {
	pgxTx := tx.(*Tx).PgxTx()

	query := `
		INSERT INTO bank_movement (
			id, fingerprint, status, invoice_id, bank_account_name, bank_account,
			currency_iso, currency_id, customer_bank_account, customer_name,
			variable_symbol, constant_symbol, message, price, movement_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := pgxTx.Exec(ctx, query,
		movement.ID,
		movement.Fingerprint,
		string(movement.Status),
		movement.InvoiceID,
		movement.BankAccountName,
		movement.BankAccount,
		movement.CurrencyISO,
		movement.CurrencyID,
		movement.CustomerBankAccount,
		movement.CustomerName,
		movement.VariableSymbol,
		movement.ConstantSymbol,
		movement.Message,
		movement.Price.String(),
		movement.MovementDate,
		movement.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return domain.ErrDuplicateFingerprint
		}
		return err
	}

	return nil
}

// GetByID retrieves a movement by ID.
func (r *MovementRepository) GetByID(ctx context.Context, id string) (*domain.BankMovement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM bank_movement WHERE id = $1`, id)
	return scanMovement(row)
}

// GetByFingerprint retrieves a movement by its dedup key.
func (r *MovementRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.BankMovement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM bank_movement WHERE fingerprint = $1`, fingerprint)
	return scanMovement(row)
}

// UpdateStatus sets a movement's status outside any reconciliation
// transaction; used by the manual operator action.
func (r *MovementRepository) UpdateStatus(ctx context.Context, id string, status domain.MovementStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE bank_movement SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMovementNotFound
	}

	return nil
}

func scanMovement(row pgx.Row) (*domain.BankMovement, error) {
	var (
		movement domain.BankMovement
		status   string
		price    string
	)

	err := row.Scan(
		&movement.ID,
		&movement.Fingerprint,
		&status,
		&movement.InvoiceID,
		&movement.BankAccountName,
		&movement.BankAccount,
		&movement.CurrencyISO,
		&movement.CurrencyID,
		&movement.CustomerBankAccount,
		&movement.CustomerName,
		&movement.VariableSymbol,
		&movement.ConstantSymbol,
		&movement.Message,
		&price,
		&movement.MovementDate,
		&movement.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMovementNotFound
		}
		return nil, err
	}

	movement.Status = domain.MovementStatus(status)

	movement.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}

	return &movement, nil
}
