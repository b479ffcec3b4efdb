package identity

import (
	"context"

	"github.com/cryptopay/cryptopay/internal/ledger"
)

// Store is the slice of the wallet store identity needs.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error
	Account(ctx context.Context, id string) (ledger.Account, error)
	AccountByEmail(ctx context.Context, email string) (ledger.Account, error)
	UpdateDisplayName(ctx context.Context, id, name string) error
	MerchantByAccount(ctx context.Context, accountID string) (ledger.Merchant, error)
}
