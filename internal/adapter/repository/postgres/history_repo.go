package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/paywatch/internal/domain"
	"github.com/iho/paywatch/internal/usecase"
)

// HistoryRepository implements usecase.HistoryRepository over the
// append-only invoice_history table.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// Create appends a history entry inside the given transaction.
func (r *HistoryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.InvoiceHistory) error {
	pgxTx := tx.(*Tx).PgxTx()

	_, err := pgxTx.Exec(ctx,
		`INSERT INTO invoice_history (id, invoice_id, description, acting_user, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID,
		entry.InvoiceID,
		entry.Description,
		entry.User,
		entry.CreatedAt,
	)

	return err
}
