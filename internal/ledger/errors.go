package ledger

import "errors"

// Классы ошибок ledger-а. Вызывающий код различает их через errors.Is.
var (
	ErrDuplicateEmail       = errors.New("account with this email already exists")
	ErrNotFound             = errors.New("account not found")
	ErrInvalidPassword      = errors.New("invalid password")
	ErrInvalidCode          = errors.New("invalid code")
	ErrCodeExpired          = errors.New("code expired")
	ErrVerificationRequired = errors.New("email verification required")
	ErrPersistence          = errors.New("persistence failure")
)

// IsTransient сообщает, можно ли повторить операцию целиком.
// Повторяемы только сбои сохранения.
func IsTransient(err error) bool {
	return errors.Is(err, ErrPersistence)
}
