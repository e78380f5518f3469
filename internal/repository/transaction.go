package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Serhat17/bonkback/internal/model"
)

const txColumns = `id, user_id, order_id, merchant_name, purchase_amount, total_cashback,
		purchase_date, return_window_ends_at, is_returned, status, created_at`

// TransactionRepository handles cashback transaction persistence.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func scanTx(row pgx.Row) (*model.CashbackTransaction, error) {
	var tx model.CashbackTransaction
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.OrderID,
		&tx.MerchantName,
		&tx.PurchaseAmount,
		&tx.TotalCashback,
		&tx.PurchaseDate,
		&tx.ReturnWindowEndsAt,
		&tx.IsReturned,
		&tx.Status,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Create inserts a new cashback transaction. A duplicate order id returns
// ErrDuplicateOrder so intake retries from the email parser stay idempotent.
func (r *TransactionRepository) Create(ctx context.Context, tx *model.CashbackTransaction) (*model.CashbackTransaction, error) {
	const query = `
		INSERT INTO cashback_transactions
			(id, user_id, order_id, merchant_name, purchase_amount, total_cashback,
			 purchase_date, return_window_ends_at, is_returned, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, NOW())
		RETURNING ` + txColumns

	id := tx.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	created, err := scanTx(r.pool.QueryRow(ctx, query,
		id, tx.UserID, tx.OrderID, tx.MerchantName, tx.PurchaseAmount, tx.TotalCashback,
		tx.PurchaseDate, tx.ReturnWindowEndsAt, model.TxStatusPending,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateOrder
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return created, nil
}

// GetByID retrieves a transaction by id.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.CashbackTransaction, error) {
	const query = `SELECT ` + txColumns + ` FROM cashback_transactions WHERE id = $1`

	tx, err := scanTx(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// GetByUser retrieves all transactions for a user, newest first.
func (r *TransactionRepository) GetByUser(ctx context.Context, userID uuid.UUID) ([]*model.CashbackTransaction, error) {
	const query = `
		SELECT ` + txColumns + `
		FROM cashback_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.CashbackTransaction
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}

// MarkReturned flags a transaction as returned, voiding its cashback.
// Called by the external returns/fraud process; a hard veto on release.
func (r *TransactionRepository) MarkReturned(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE cashback_transactions
		SET is_returned = TRUE, status = $2
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, model.TxStatusReturned)
	if err != nil {
		return fmt.Errorf("failed to mark returned: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTxNotFound
	}
	return nil
}
