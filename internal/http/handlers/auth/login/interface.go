package login

import (
	"context"

	"github.com/magabrotheeeer/render-ledger/internal/services/accounts"
)

// Service проверяет учётные данные.
type Service interface {
	Login(ctx context.Context, email, password string) (accounts.Profile, error)
}

// TokenGenerator выпускает токен доступа.
type TokenGenerator interface {
	GenerateToken(accountID, email string) (string, error)
}
