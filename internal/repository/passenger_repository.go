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

// Wire field name to column mapping for applied edits.
var passengerColumns = map[string]string{
	models.FieldFullName:  "full_name",
	models.FieldCPF:       "cpf",
	models.FieldBirthDate: "birth_date",
	models.FieldEmail:     "email",
	models.FieldFareType:  "fare_type",
}

// PassengerRepository persists traveller records.
type PassengerRepository struct {
	db *sqlx.DB
}

// NewPassengerRepository constructs the repository.
func NewPassengerRepository(db *sqlx.DB) *PassengerRepository {
	return &PassengerRepository{db: db}
}

// Create inserts a new passenger row.
func (r *PassengerRepository) Create(ctx context.Context, p *models.Passenger) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.LastModifiedAt = now
	const query = `INSERT INTO passengers
	(id, transaction_id, full_name, cpf, birth_date, email, fare_type, version, created_at, last_modified_at)
	VALUES (:id, :transaction_id, :full_name, :cpf, :birth_date, :email, :fare_type, :version, :created_at, :last_modified_at)`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("create passenger: %w", err)
	}
	return nil
}

// GetByID fetches a passenger by identifier.
func (r *PassengerRepository) GetByID(ctx context.Context, id string) (*models.Passenger, error) {
	const query = `SELECT id, transaction_id, full_name, cpf, birth_date, email, fare_type, version, created_at, last_modified_at
	FROM passengers WHERE id = $1`
	var p models.Passenger
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByTransaction returns all passengers registered on a transaction.
func (r *PassengerRepository) ListByTransaction(ctx context.Context, transactionID string) ([]models.Passenger, error) {
	const query = `SELECT id, transaction_id, full_name, cpf, birth_date, email, fare_type, version, created_at, last_modified_at
	FROM passengers WHERE transaction_id = $1 ORDER BY created_at ASC`
	var passengers []models.Passenger
	if err := r.db.SelectContext(ctx, &passengers, query, transactionID); err != nil {
		return nil, fmt.Errorf("list passengers: %w", err)
	}
	return passengers, nil
}

// CountByTransaction returns the materialized passenger count. Pending add
// requests do not reserve capacity, so this is the number the capacity guard
// judges against.
func (r *PassengerRepository) CountByTransaction(ctx context.Context, transactionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM passengers WHERE transaction_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, transactionID); err != nil {
		return 0, fmt.Errorf("count passengers: %w", err)
	}
	return count, nil
}

// ApplyChanges replaces the changed fields on a passenger row guarded by an
// optimistic version check. Returns sql.ErrNoRows when the version moved
// underneath the caller.
func (r *PassengerRepository) ApplyChanges(ctx context.Context, id string, version int, changes []models.ChangeRecord) error {
	if len(changes) == 0 {
		return nil
	}
	setParts := make([]string, 0, len(changes)+2)
	args := map[string]interface{}{
		"id":               id,
		"version":          version,
		"last_modified_at": time.Now().UTC(),
	}
	for _, change := range changes {
		column, ok := passengerColumns[change.Field]
		if !ok {
			return fmt.Errorf("no column for passenger field %q", change.Field)
		}
		setParts = append(setParts, fmt.Sprintf("%s = :%s", column, column))
		args[column] = change.NewValue
	}
	setParts = append(setParts, "version = version + 1", "last_modified_at = :last_modified_at")

	query := fmt.Sprintf("UPDATE passengers SET %s WHERE id = :id AND version = :version", strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, args)
	if err != nil {
		return fmt.Errorf("apply passenger changes: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check passenger update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
