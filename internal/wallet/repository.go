package wallet

import (
	"context"

	"github.com/cryptopay/cryptopay/internal/ledger"
)

// Reader is the read side of the ledger store used by wallet queries.
type Reader interface {
	Account(ctx context.Context, id string) (ledger.Account, error)
	Balances(ctx context.Context, accountID string) (ledger.BalanceSet, error)
	Entries(ctx context.Context, accountID string, page ledger.Page) (ledger.EntryPage, error)
}
