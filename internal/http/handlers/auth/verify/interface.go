package verify

import (
	"context"

	"github.com/magabrotheeeer/render-ledger/internal/services/accounts"
)

// Service подтверждает почту и перевыпускает коды.
type Service interface {
	VerifyEmail(ctx context.Context, email, code string) (accounts.Verification, error)
	ResendVerification(ctx context.Context, email string) (string, error)
}
