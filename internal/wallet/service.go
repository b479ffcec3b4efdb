package wallet

import (
	"context"
	"iter"
	"net/url"
	"time"

	"github.com/cryptopay/cryptopay/internal/ledger"
	"github.com/cryptopay/cryptopay/internal/money"
)

// Service exposes read-only wallet queries backed by the ledger.
type Service struct {
	reader Reader
	now    func() time.Time
}

// NewService builds a wallet service instance.
func NewService(reader Reader) *Service {
	return &Service{reader: reader, now: func() time.Time { return time.Now().UTC() }}
}

// Balances returns all three bucket balances of accountID.
func (s *Service) Balances(ctx context.Context, accountID string) (Balances, error) {
	set, err := s.reader.Balances(ctx, accountID)
	if err != nil {
		return Balances{}, err
	}
	return fromSet(set, s.now()), nil
}

// Ledger returns one page of entries, newest first.
func (s *Service) Ledger(ctx context.Context, accountID string, page ledger.Page) (ledger.EntryPage, error) {
	if _, err := s.reader.Account(ctx, accountID); err != nil {
		return ledger.EntryPage{}, err
	}
	return s.reader.Entries(ctx, accountID, page)
}

// History walks every entry of accountID, newest first, fetching pages on
// demand. Iteration stops at the first error.
func (s *Service) History(ctx context.Context, accountID string) iter.Seq2[ledger.Entry, error] {
	return func(yield func(ledger.Entry, error) bool) {
		page := ledger.Page{}
		for {
			res, err := s.Ledger(ctx, accountID, page)
			if err != nil {
				yield(ledger.Entry{}, err)
				return
			}
			for _, e := range res.Entries {
				if !yield(e, nil) {
					return
				}
			}
			if res.NextCursor == "" {
				return
			}
			page.Cursor = res.NextCursor
		}
	}
}

// PaymentAddress returns the alias of accountID and a UPI deep link for it.
func (s *Service) PaymentAddress(ctx context.Context, accountID string) (PaymentAddress, error) {
	account, err := s.reader.Account(ctx, accountID)
	if err != nil {
		return PaymentAddress{}, err
	}
	q := url.Values{}
	q.Set("pa", account.Alias)
	q.Set("pn", account.DisplayName)
	q.Set("cu", money.Currency)
	return PaymentAddress{
		Alias:       account.Alias,
		DisplayName: account.DisplayName,
		URI:         "upi://pay?" + q.Encode(),
	}, nil
}
