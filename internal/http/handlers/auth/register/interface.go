package register

import (
	"context"

	"github.com/magabrotheeeer/render-ledger/internal/services/accounts"
)

// Service регистрирует новые учётные записи.
type Service interface {
	Register(ctx context.Context, name, email, password string) (accounts.Registration, error)
}
