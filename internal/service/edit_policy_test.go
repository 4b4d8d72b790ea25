package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voemax/passenger-api/internal/models"
	"github.com/voemax/passenger-api/pkg/config"
	appErrors "github.com/voemax/passenger-api/pkg/errors"
)

func testPolicy() *EditPolicy {
	return NewEditPolicy(config.EditPolicyConfig{FreeWindow: 15 * time.Minute, MaxPassengers: 6})
}

func TestEditPolicyClassify(t *testing.T) {
	policy := testPolicy()

	critical, err := policy.Classify(models.FieldCPF)
	require.NoError(t, err)
	require.Equal(t, models.FieldCritical, critical)

	critical, err = policy.Classify(models.FieldBirthDate)
	require.NoError(t, err)
	require.Equal(t, models.FieldCritical, critical)

	for _, field := range []string{models.FieldFullName, models.FieldEmail, models.FieldFareType} {
		criticality, err := policy.Classify(field)
		require.NoError(t, err)
		require.Equal(t, models.FieldNormal, criticality)
	}

	_, err = policy.Classify("seatPreference")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnknownField.Code, appErrors.FromError(err).Code)
}

func TestEditPolicyFreeWindowBoundary(t *testing.T) {
	policy := testPolicy()
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, policy.IsWithinFreeWindow(createdAt, createdAt.Add(14*time.Minute+59*time.Second)))
	// Exactly at the boundary the window is closed.
	require.False(t, policy.IsWithinFreeWindow(createdAt, createdAt.Add(15*time.Minute)))
	require.False(t, policy.IsWithinFreeWindow(createdAt, createdAt.Add(20*time.Minute)))
}

func TestEditPolicyRemainingSeconds(t *testing.T) {
	policy := testPolicy()
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, int64(600), policy.RemainingSeconds(createdAt, createdAt.Add(5*time.Minute)))
	require.Equal(t, int64(0), policy.RemainingSeconds(createdAt, createdAt.Add(15*time.Minute)))
	require.Equal(t, int64(0), policy.RemainingSeconds(createdAt, createdAt.Add(time.Hour)))
}

func TestEditPolicyDiffNormalizesValues(t *testing.T) {
	policy := testPolicy()
	passenger := &models.Passenger{
		FullName:  "Maria Silva",
		CPF:       "39053344705",
		BirthDate: "1990-01-02",
		Email:     "maria@example.com",
		FareType:  models.FareEconomy,
	}

	// Masked CPF equal to the stored value is not a change.
	changes, err := policy.Diff(passenger, models.PassengerFields{
		models.FieldCPF:       "390.533.447-05",
		models.FieldBirthDate: "02/01/1990",
	})
	require.NoError(t, err)
	require.Empty(t, changes)

	changes, err = policy.Diff(passenger, models.PassengerFields{
		models.FieldFullName: "Maria Souza",
		models.FieldFareType: "business",
	})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	require.Equal(t, models.FieldFullName, changes[0].Field)
	require.False(t, changes[0].Critical)
	require.Equal(t, "BUSINESS", changes[1].NewValue)
}

func TestEditPolicyDiffCriticalChange(t *testing.T) {
	policy := testPolicy()
	passenger := &models.Passenger{CPF: "39053344705", BirthDate: "1990-01-02"}

	changes, err := policy.Diff(passenger, models.PassengerFields{models.FieldCPF: "111.444.777-35"})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.True(t, changes[0].Critical)
	require.Equal(t, "11144477735", changes[0].NewValue)
	require.True(t, HasCriticalChange(changes))
}

func TestEditPolicyDiffRejectsUnknownField(t *testing.T) {
	policy := testPolicy()
	passenger := &models.Passenger{FullName: "Maria Silva"}

	_, err := policy.Diff(passenger, models.PassengerFields{
		models.FieldFullName: "Maria Silva",
		"seatPreference":     "window",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnknownField.Code, appErrors.FromError(err).Code)
}

func TestEditPolicyCheckCapacity(t *testing.T) {
	policy := testPolicy()

	require.NoError(t, policy.CheckCapacity(4, 2))
	err := policy.CheckCapacity(5, 2)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)
}

func TestNormalizeField(t *testing.T) {
	cpf, err := NormalizeField(models.FieldCPF, "390.533.447-05")
	require.NoError(t, err)
	require.Equal(t, "39053344705", cpf)

	_, err = NormalizeField(models.FieldCPF, "390.533.447")
	require.Error(t, err)

	date, err := NormalizeField(models.FieldBirthDate, "02-01-1990")
	require.NoError(t, err)
	require.Equal(t, "1990-01-02", date)

	_, err = NormalizeField(models.FieldBirthDate, "1990/01/02")
	require.Error(t, err)
}
