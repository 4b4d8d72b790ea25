package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/voemax/passenger-api/internal/models"
)

// TransactionRepository reads purchase transactions. Transactions are created
// by the marketplace checkout flow; this API only anchors edit-window policy
// on them, so writes are limited to seeding and status updates.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository constructs the repository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// GetByID fetches a transaction by identifier.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	const query = `SELECT id, offer_id, buyer_id, seller_id, miles_quantity, status, created_at, updated_at
	FROM transactions WHERE id = $1`
	var tx models.Transaction
	if err := r.db.GetContext(ctx, &tx, query, id); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Create inserts a transaction row.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Status == "" {
		tx.Status = models.TransactionStatusActive
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	const query = `INSERT INTO transactions
	(id, offer_id, buyer_id, seller_id, miles_quantity, status, created_at, updated_at)
	VALUES (:id, :offer_id, :buyer_id, :seller_id, :miles_quantity, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tx); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}
