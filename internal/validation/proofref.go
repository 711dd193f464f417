// Package validation содержит функции валидации входных данных.
package validation

const maxProofRefLen = 256

// IsValidProofRef проверяет корректность ссылки на подтверждение оплаты:
// непустая строка разумной длины из печатных символов без пробелов.
func IsValidProofRef(ref string) bool {
	if ref == "" || len(ref) > maxProofRefLen {
		return false
	}

	for _, ch := range ref {
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_' || ch == '.' || ch == ':' || ch == '/':
		default:
			return false
		}
	}

	return true
}
