package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/voemax/passenger-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestPassengerRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPassengerRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO passengers")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	passenger := &models.Passenger{
		TransactionID: "tx-1",
		FullName:      "Maria Silva",
		CPF:           "39053344705",
		BirthDate:     "1990-01-02",
		Email:         "maria@example.com",
		FareType:      models.FareEconomy,
	}
	require.NoError(t, repo.Create(context.Background(), passenger))
	require.NotEmpty(t, passenger.ID)
	require.Equal(t, 1, passenger.Version)

	rows := sqlmock.NewRows([]string{"id", "transaction_id", "full_name", "cpf", "birth_date", "email", "fare_type", "version", "created_at", "last_modified_at"}).
		AddRow(passenger.ID, "tx-1", "Maria Silva", "39053344705", "1990-01-02", "maria@example.com", "ECONOMY", 1, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, transaction_id, full_name")).
		WithArgs(passenger.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), passenger.ID)
	require.NoError(t, err)
	require.Equal(t, passenger.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassengerRepositoryCountByTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPassengerRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM passengers")).
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountByTransaction(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassengerRepositoryApplyChanges(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPassengerRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE passengers SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ApplyChanges(context.Background(), "pax-1", 1, []models.ChangeRecord{
		{Field: models.FieldFullName, NewValue: "Maria Souza"},
		{Field: models.FieldEmail, NewValue: "maria.souza@example.com"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassengerRepositoryApplyChangesVersionConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPassengerRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE passengers SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ApplyChanges(context.Background(), "pax-1", 1, []models.ChangeRecord{
		{Field: models.FieldFullName, NewValue: "Maria Souza"},
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassengerRepositoryApplyChangesEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPassengerRepository(db)
	require.NoError(t, repo.ApplyChanges(context.Background(), "pax-1", 1, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
