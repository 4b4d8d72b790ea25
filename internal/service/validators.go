package service

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/voemax/passenger-api/internal/models"
)

// newPassengerValidator registers the domain validations used by passenger
// payloads: CPF check digits and known fare classes.
func newPassengerValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return validCPF(fl.Field().String())
	})
	_ = v.RegisterValidation("faretype", func(fl validator.FieldLevel) bool {
		switch models.FareType(strings.ToUpper(fl.Field().String())) {
		case models.FareEconomy, models.FarePremiumEconomy, models.FareBusiness, models.FareFirst:
			return true
		default:
			return false
		}
	})
	return v
}

// validCPF verifies the two check digits of a Brazilian CPF. Accepts masked
// or bare input; repeated-digit sequences are invalid per Receita Federal
// rules.
func validCPF(value string) bool {
	digits := make([]int, 0, 11)
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) != 11 {
		return false
	}
	repeated := true
	for _, d := range digits[1:] {
		if d != digits[0] {
			repeated = false
			break
		}
	}
	if repeated {
		return false
	}
	for _, pos := range []int{9, 10} {
		sum := 0
		for i := 0; i < pos; i++ {
			sum += digits[i] * (pos + 1 - i)
		}
		check := (sum * 10) % 11
		if check == 10 {
			check = 0
		}
		if check != digits[pos] {
			return false
		}
	}
	return true
}
