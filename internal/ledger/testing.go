package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/cryptopay/cryptopay/internal/money"
)

// SeedAccount registers a bare account in store and returns it. Intended for tests.
func SeedAccount(ctx context.Context, store Store, email, alias string) (Account, error) {
	account := Account{
		ID:           uuid.NewString(),
		Email:        email,
		Alias:        alias,
		PasswordHash: []byte("x"),
	}
	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateAccount(ctx, account)
	})
	return account, err
}

// SeedBalance credits bucket of accountID by amount with a matching entry, so
// seeded balances still agree with the ledger. Intended for tests.
func SeedBalance(ctx context.Context, store Store, accountID string, bucket Bucket, amount money.Amount) error {
	return store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		key := BalanceKey{AccountID: accountID, Bucket: bucket}
		if _, err := tx.Adjust(ctx, key, amount); err != nil {
			return err
		}
		_, err := tx.Append(ctx, Entry{AccountID: accountID, Bucket: bucket, Amount: amount, Description: "Opening balance"})
		return err
	})
}

// Sum adds up every entry of accountID in bucket.
func Sum(ctx context.Context, store Store, accountID string, bucket Bucket) (money.Amount, error) {
	var total money.Amount
	page := Page{Limit: maxPageLimit}
	for {
		res, err := store.Entries(ctx, accountID, page)
		if err != nil {
			return 0, err
		}
		for _, e := range res.Entries {
			if e.Bucket == bucket {
				total += e.Amount
			}
		}
		if res.NextCursor == "" {
			return total, nil
		}
		page.Cursor = res.NextCursor
	}
}
