package models

import "time"

// Passenger field names as accepted on the wire.
const (
	FieldFullName  = "fullName"
	FieldCPF       = "cpf"
	FieldBirthDate = "birthDate"
	FieldEmail     = "email"
	FieldFareType  = "fareType"
)

// FieldCriticality classifies a passenger field for approval purposes.
type FieldCriticality string

const (
	FieldCritical FieldCriticality = "CRITICAL"
	FieldNormal   FieldCriticality = "NORMAL"
)

// FareType enumerates supported fare classes.
type FareType string

const (
	FareEconomy        FareType = "ECONOMY"
	FarePremiumEconomy FareType = "PREMIUM_ECONOMY"
	FareBusiness       FareType = "BUSINESS"
	FareFirst          FareType = "FIRST"
)

// Passenger is a traveller registered against a transaction. Rows are never
// deleted; edits are field replacements routed through the approval engine.
// Version is bumped on every applied mutation and guards read-modify-write.
type Passenger struct {
	ID             string    `db:"id" json:"id"`
	TransactionID  string    `db:"transaction_id" json:"transactionId"`
	FullName       string    `db:"full_name" json:"fullName"`
	CPF            string    `db:"cpf" json:"cpf"`
	BirthDate      string    `db:"birth_date" json:"birthDate"`
	Email          string    `db:"email" json:"email"`
	FareType       FareType  `db:"fare_type" json:"fareType"`
	Version        int       `db:"version" json:"version"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	LastModifiedAt time.Time `db:"last_modified_at" json:"lastModifiedAt"`
}

// PassengerFields is a partial passenger payload keyed by wire field name.
// Only fields present are considered for diffing; unknown keys are rejected.
type PassengerFields map[string]string

// ChangeRecord captures a single proposed field replacement. Ephemeral except
// when embedded in an approval request for audit display.
type ChangeRecord struct {
	Field    string `json:"field"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
	Critical bool   `json:"critical"`
}
