package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/voemax/passenger-api/internal/models"
)

// ApprovalRepository persists the approval queue.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a new approval request in PENDING state.
func (r *ApprovalRepository) Create(ctx context.Context, request *models.ApprovalRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.ApprovalStatusPending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approval_requests
	(id, transaction_id, buyer_id, seller_id, type, target_passenger_id, changes, new_passenger_data, reason, status, created_at, decided_at, decided_by, decision_note)
	VALUES (:id, :transaction_id, :buyer_id, :seller_id, :type, :target_passenger_id, :changes, :new_passenger_data, :reason, :status, :created_at, :decided_at, :decided_by, :decision_note)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

// GetByID fetches an approval request by identifier.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	const query = `SELECT id, transaction_id, buyer_id, seller_id, type, target_passenger_id, changes, new_passenger_data,
	       reason, status, created_at, decided_at, decided_by, decision_note
	FROM approval_requests WHERE id = $1`
	var request models.ApprovalRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns approval requests matching the filter (newest first).
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT id, transaction_id, buyer_id, seller_id, type, target_passenger_id, changes, new_passenger_data,
	       reason, status, created_at, decided_at, decided_by, decision_note FROM approval_requests`)

	conditions := make([]string, 0, 5)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.TransactionID != "" {
		args = append(args, filter.TransactionID)
		conditions = append(conditions, fmt.Sprintf("transaction_id = $%d", len(args)))
	}
	if filter.SellerID != "" {
		args = append(args, filter.SellerID)
		conditions = append(conditions, fmt.Sprintf("seller_id = $%d", len(args)))
	}
	if filter.BuyerID != "" {
		args = append(args, filter.BuyerID)
		conditions = append(conditions, fmt.Sprintf("buyer_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	return requests, nil
}

// DecideParams groups the columns written exactly once by a decision.
type DecideParams struct {
	ID        string
	Status    models.ApprovalStatus
	DecidedBy string
	DecidedAt time.Time
	Note      *string
}

// Decide transitions a PENDING request to a terminal state. The status guard
// in the WHERE clause makes the transition happen at most once; sql.ErrNoRows
// signals the request was already decided.
func (r *ApprovalRepository) Decide(ctx context.Context, params DecideParams) error {
	query := fmt.Sprintf(`UPDATE approval_requests
	SET status = :status, decided_by = :decided_by, decided_at = :decided_at, decision_note = :decision_note
	WHERE id = :id AND status = '%s'`, models.ApprovalStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            params.ID,
		"status":        params.Status,
		"decided_by":    params.DecidedBy,
		"decided_at":    params.DecidedAt,
		"decision_note": params.Note,
	})
	if err != nil {
		return fmt.Errorf("decide approval request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
