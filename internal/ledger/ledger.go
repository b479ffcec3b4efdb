package ledger

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/money"
)

// Store is the durable state of the wallet: accounts, balances, the ledger,
// merchants and gateway reconciliation records. Every multi-record mutation
// goes through WithinTx.
type Store interface {
	// WithinTx runs fn in one atomic unit of work. If fn returns an error or
	// ctx is done before commit, nothing fn did is persisted.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Account(ctx context.Context, id string) (Account, error)
	AccountByEmail(ctx context.Context, email string) (Account, error)
	UpdateDisplayName(ctx context.Context, id, name string) error

	Balances(ctx context.Context, accountID string) (BalanceSet, error)
	Entries(ctx context.Context, accountID string, page Page) (EntryPage, error)

	Merchant(ctx context.Context, id string) (Merchant, error)
	MerchantByAccount(ctx context.Context, accountID string) (Merchant, error)

	SaveOrder(ctx context.Context, order Order) error
	Order(ctx context.Context, handle string) (Order, error)
}

// Tx is the view of the store inside one unit of work.
type Tx interface {
	// CreateAccount inserts the account together with a zeroed balance set.
	// Email or alias collisions fail with DuplicateIdentity.
	CreateAccount(ctx context.Context, account Account) error
	Account(ctx context.Context, id string) (Account, error)
	AccountByAlias(ctx context.Context, alias string) (Account, error)

	CreateMerchant(ctx context.Context, merchant Merchant) error
	Merchant(ctx context.Context, id string) (Merchant, error)

	// LockBalances takes exclusive locks on the given rows in canonical order.
	// Call it with every row an operation will touch before reading any of them.
	LockBalances(ctx context.Context, keys ...BalanceKey) error
	Balance(ctx context.Context, key BalanceKey) (money.Amount, error)
	// Adjust applies delta and returns the new balance. A negative result fails
	// with InsufficientFunds, a missing row with NotFound.
	Adjust(ctx context.Context, key BalanceKey, delta money.Amount) (money.Amount, error)

	// Append records an entry and returns it with ID, Seq and CreatedAt set.
	Append(ctx context.Context, entry Entry) (Entry, error)

	// ClaimPayment records a gateway confirmation; a repeat of the same
	// (order, payment) pair fails with DuplicatePayment.
	ClaimPayment(ctx context.Context, claim PaymentClaim) error
}

func sortKeys(keys []BalanceKey) []BalanceKey {
	out := make([]BalanceKey, 0, len(keys))
	seen := make(map[BalanceKey]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

func validKey(key BalanceKey) error {
	if key.AccountID == "" {
		return apperr.Invalid("account id is required")
	}
	if !key.Bucket.Valid() {
		return apperr.Invalid("unknown bucket " + string(key.Bucket))
	}
	return nil
}

// nextBalance applies delta to balance. A negative result fails with
// InsufficientFunds and a result past the int64 range with InvalidRequest.
func nextBalance(key BalanceKey, balance, delta money.Amount) (money.Amount, error) {
	if delta > 0 && balance > math.MaxInt64-delta {
		return 0, apperr.Invalid(fmt.Sprintf("credit of %s would overflow the %s balance", delta, key.Bucket))
	}
	next := balance + delta
	if next < 0 {
		return 0, insufficient(key, balance, delta)
	}
	return next, nil
}

func insufficient(key BalanceKey, balance, delta money.Amount) error {
	return apperr.New(apperr.KindInsufficientFunds,
		fmt.Sprintf("insufficient balance in %s: have %s, need %s", key.Bucket, balance, -delta))
}

// cursor is the seq of the last entry of a page. Seq is assigned at insert
// time, so it orders an account's entries the way they were appended even
// when created_at values from concurrent units of work interleave.
type cursor struct {
	seq int64
}

func encodeCursor(e Entry) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(e.Seq, 10)))
}

func decodeCursor(s string) (cursor, bool, error) {
	if s == "" {
		return cursor{}, false, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, false, apperr.Invalid("malformed cursor")
	}
	seq, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || seq <= 0 {
		return cursor{}, false, apperr.Invalid("malformed cursor")
	}
	return cursor{seq: seq}, true, nil
}

// before reports whether e sorts after the cursor in newest-first order.
func (c cursor) before(e Entry) bool {
	return e.Seq < c.seq
}
