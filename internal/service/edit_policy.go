package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/voemax/passenger-api/internal/models"
	"github.com/voemax/passenger-api/pkg/config"
	appErrors "github.com/voemax/passenger-api/pkg/errors"
)

// fieldCriticality is the authoritative classification of passenger fields.
// CPF and birth date identify the traveller to the airline and always require
// seller approval to change.
var fieldCriticality = map[string]models.FieldCriticality{
	models.FieldFullName:  models.FieldNormal,
	models.FieldCPF:       models.FieldCritical,
	models.FieldBirthDate: models.FieldCritical,
	models.FieldEmail:     models.FieldNormal,
	models.FieldFareType:  models.FieldNormal,
}

// birthDateFormats lists accepted input masks, normalized to ISO on the way in.
var birthDateFormats = []string{"2006-01-02", "02/01/2006", "02-01-2006"}

// EditPolicy is the pure rules core: field classification, the free-edit
// window, diffing and the passenger capacity guard. It holds no state beyond
// configuration and is safe for concurrent use.
type EditPolicy struct {
	freeWindow    time.Duration
	maxPassengers int
}

// NewEditPolicy builds the policy from configuration.
func NewEditPolicy(cfg config.EditPolicyConfig) *EditPolicy {
	window := cfg.FreeWindow
	if window <= 0 {
		window = 15 * time.Minute
	}
	max := cfg.MaxPassengers
	if max <= 0 {
		max = 6
	}
	return &EditPolicy{freeWindow: window, maxPassengers: max}
}

// MaxPassengers exposes the configured ceiling.
func (p *EditPolicy) MaxPassengers() int { return p.maxPassengers }

// Classify maps a wire field name to its criticality. Unknown fields are a
// caller mistake reported through the error taxonomy, never silently skipped.
func (p *EditPolicy) Classify(field string) (models.FieldCriticality, error) {
	criticality, ok := fieldCriticality[field]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrUnknownField, fmt.Sprintf("unknown passenger field: %s", field))
	}
	return criticality, nil
}

// IsWithinFreeWindow reports whether the free-edit window anchored at the
// transaction creation time is still open at the given instant. Re-editing
// never resets the clock.
func (p *EditPolicy) IsWithinFreeWindow(transactionCreatedAt, now time.Time) bool {
	return now.Sub(transactionCreatedAt) < p.freeWindow
}

// RemainingSeconds returns the seconds left in the free-edit window,
// saturating at zero once expired.
func (p *EditPolicy) RemainingSeconds(transactionCreatedAt, now time.Time) int64 {
	remaining := p.freeWindow - now.Sub(transactionCreatedAt)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

// Diff computes the changed fields between an existing passenger and a
// submitted partial payload. Values are compared after mask normalization;
// equal or absent fields produce no record. An empty result is a no-op edit.
func (p *EditPolicy) Diff(existing *models.Passenger, submitted models.PassengerFields) ([]models.ChangeRecord, error) {
	changes := make([]models.ChangeRecord, 0, len(submitted))
	// Walk the schema order rather than the map so output is deterministic.
	for _, field := range []string{models.FieldFullName, models.FieldCPF, models.FieldBirthDate, models.FieldEmail, models.FieldFareType} {
		raw, present := submitted[field]
		if !present {
			continue
		}
		criticality, err := p.Classify(field)
		if err != nil {
			return nil, err
		}
		newValue, err := NormalizeField(field, raw)
		if err != nil {
			return nil, err
		}
		oldValue := passengerValue(existing, field)
		if newValue == oldValue {
			continue
		}
		changes = append(changes, models.ChangeRecord{
			Field:    field,
			OldValue: oldValue,
			NewValue: newValue,
			Critical: criticality == models.FieldCritical,
		})
	}
	// Reject unknown keys even when every known field matched.
	for field := range submitted {
		if _, err := p.Classify(field); err != nil {
			return nil, err
		}
	}
	return changes, nil
}

// CheckCapacity enforces the passenger ceiling against materialized count
// plus the incoming batch. The whole batch passes or fails together.
func (p *EditPolicy) CheckCapacity(currentCount, incomingCount int) error {
	if currentCount+incomingCount > p.maxPassengers {
		return appErrors.Clone(appErrors.ErrCapacityExceeded,
			fmt.Sprintf("transaction allows at most %d passengers; has %d, attempted to add %d", p.maxPassengers, currentCount, incomingCount))
	}
	return nil
}

// HasCriticalChange reports whether any change touches a critical field.
func HasCriticalChange(changes []models.ChangeRecord) bool {
	for _, change := range changes {
		if change.Critical {
			return true
		}
	}
	return false
}

// NormalizeField strips formatting masks so comparisons are exact: CPF loses
// punctuation, birth dates collapse to ISO, fare types upper-case.
func NormalizeField(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch field {
	case models.FieldCPF:
		return normalizeCPF(value)
	case models.FieldBirthDate:
		return normalizeBirthDate(value)
	case models.FieldFareType:
		return strings.ToUpper(value), nil
	default:
		return value, nil
	}
}

func normalizeCPF(value string) (string, error) {
	digits := make([]rune, 0, 11)
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, r)
		case r == '.' || r == '-' || r == ' ':
			// mask characters
		default:
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid character in CPF: %q", r))
		}
	}
	if len(digits) != 11 {
		return "", appErrors.Clone(appErrors.ErrValidation, "CPF must contain 11 digits")
	}
	return string(digits), nil
}

func normalizeBirthDate(value string) (string, error) {
	for _, layout := range birthDateFormats {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.Format("2006-01-02"), nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unrecognized birth date format: %s", value))
}

func passengerValue(p *models.Passenger, field string) string {
	switch field {
	case models.FieldFullName:
		return p.FullName
	case models.FieldCPF:
		return p.CPF
	case models.FieldBirthDate:
		return p.BirthDate
	case models.FieldEmail:
		return p.Email
	case models.FieldFareType:
		return string(p.FareType)
	default:
		return ""
	}
}
