// Package validation содержит функции валидации входных данных.
package validation

import (
	"regexp"

	validatorv10 "github.com/go-playground/validator/v10"
)

var postcodeRe = regexp.MustCompile(`^[0-9]{3}-?[0-9]{4}$`)

// New возвращает настроенный валидатор с зарегистрированным правилом
// почтового индекса: семь цифр с необязательным дефисом после третьей.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// Ошибка регистрации возможна только при пустом имени правила.
	_ = v.RegisterValidation("postcode", func(fl validatorv10.FieldLevel) bool {
		return postcodeRe.MatchString(fl.Field().String())
	})

	return v
}

// IsValidPostcode проверяет формат почтового индекса вне контекста валидатора.
func IsValidPostcode(s string) bool {
	return postcodeRe.MatchString(s)
}
