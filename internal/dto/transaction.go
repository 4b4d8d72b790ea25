package dto

import "github.com/voemax/passenger-api/internal/models"

// EditWindowStatus reports the live free-edit window state for UI countdowns.
type EditWindowStatus struct {
	Open             bool  `json:"open"`
	RemainingSeconds int64 `json:"remainingSeconds"`
}

// TransactionDetail combines a transaction with its edit-window state and
// materialized passenger count.
type TransactionDetail struct {
	Transaction    models.Transaction `json:"transaction"`
	EditWindow     EditWindowStatus   `json:"editWindow"`
	PassengerCount int                `json:"passengerCount"`
	MaxPassengers  int                `json:"maxPassengers"`
}
