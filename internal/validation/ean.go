// Package validation содержит функции валидации входных данных.
package validation

import (
	"regexp"
	"strings"
	"unicode"
)

// IsValidEAN проверяет контрольную цифру штрихкода GTIN (EAN-8, UPC-A, EAN-13, GTIN-14).
func IsValidEAN(code string) bool {
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return false
	}

	sum := 0
	triple := false

	for i := len(code) - 1; i >= 0; i-- {
		ch := rune(code[i])
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if triple {
			digit *= 3
		}
		sum += digit
		triple = !triple
	}

	return sum%10 == 0
}

// Трек-код перевозчика: двухсимвольный префикс, тело из цифр и букв
// и необязательный двухбуквенный код страны в конце.
var trackingCodeRe = regexp.MustCompile(`^[0-9A-Z]{2}[0-9A-Z]{9,14}([A-Z]{2})?$`)

// NormalizeTrackingCode приводит трек-код к верхнему регистру без пробелов.
func NormalizeTrackingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidTrackingCode проверяет формат трек-кода перевозчика.
func IsValidTrackingCode(code string) bool {
	return trackingCodeRe.MatchString(code)
}
