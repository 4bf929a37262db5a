package password

import "context"

// Service выдаёт и погашает коды сброса пароля.
type Service interface {
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error
}
