// Package validation содержит функции валидации входных данных.
package validation

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct проверяет поля структуры запроса по тегам validate.
func ValidateStruct(s any) error {
	return validate.Struct(s)
}

// IsValidTrackingID проверяет формат трек-номера:
// префикс TRK- и 12 шестнадцатеричных цифр в верхнем регистре.
func IsValidTrackingID(id string) bool {
	const prefix = "TRK-"
	if len(id) != len(prefix)+12 {
		return false
	}
	if id[:len(prefix)] != prefix {
		return false
	}

	for _, ch := range id[len(prefix):] {
		if (ch < '0' || ch > '9') && (ch < 'A' || ch > 'F') {
			return false
		}
	}

	return true
}
