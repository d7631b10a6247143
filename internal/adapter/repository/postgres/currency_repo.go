package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/paywatch/internal/domain"
)

// CurrencyRepository implements usecase.CurrencyRepository.
type CurrencyRepository struct {
	pool *pgxpool.Pool
}

// NewCurrencyRepository creates a new CurrencyRepository.
func NewCurrencyRepository(pool *pgxpool.Pool) *CurrencyRepository {
	return &CurrencyRepository{pool: pool}
}

// ByISOCode looks a currency up by its ISO 4217 code.
func (r *CurrencyRepository) ByISOCode(ctx context.Context, code string) (*domain.Currency, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, iso_code, name, is_default FROM currency WHERE iso_code = $1`,
		code,
	)

	return scanCurrency(row)
}

// Default returns the system default currency.
func (r *CurrencyRepository) Default(ctx context.Context) (*domain.Currency, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, iso_code, name, is_default FROM currency WHERE is_default LIMIT 1`,
	)

	return scanCurrency(row)
}

func scanCurrency(row pgx.Row) (*domain.Currency, error) {
	var currency domain.Currency

	err := row.Scan(&currency.ID, &currency.ISOCode, &currency.Name, &currency.IsDefault)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCurrencyNotFound
		}
		return nil, err
	}

	return &currency, nil
}
