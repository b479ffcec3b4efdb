package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/money"
)

func seedPair(t *testing.T, s *MemoryStore) (Account, Account) {
	t.Helper()
	ctx := context.Background()
	a, err := SeedAccount(ctx, s, "a@example.com", "a-00000001@cryptopay")
	if err != nil {
		t.Fatalf("seed a: %v", err)
	}
	b, err := SeedAccount(ctx, s, "b@example.com", "b-00000002@cryptopay")
	if err != nil {
		t.Fatalf("seed b: %v", err)
	}
	return a, b
}

func move(ctx context.Context, s Store, from, to string, bucket Bucket, amount money.Amount) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		src := BalanceKey{AccountID: from, Bucket: bucket}
		dst := BalanceKey{AccountID: to, Bucket: bucket}
		if err := tx.LockBalances(ctx, src, dst); err != nil {
			return err
		}
		if _, err := tx.Adjust(ctx, src, -amount); err != nil {
			return err
		}
		if _, err := tx.Adjust(ctx, dst, amount); err != nil {
			return err
		}
		if _, err := tx.Append(ctx, Entry{AccountID: from, Bucket: bucket, Amount: -amount, Description: "out"}); err != nil {
			return err
		}
		_, err := tx.Append(ctx, Entry{AccountID: to, Bucket: bucket, Amount: amount, Description: "in"})
		return err
	})
}

func TestMemoryStore_NewAccountHasZeroBalances(t *testing.T) {
	s := NewInMemory()
	a, _ := seedPair(t, s)

	set, err := s.Balances(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if set.Sandbox != 0 || set.GatewayTest != 0 || set.GatewayLive != 0 {
		t.Fatalf("expected zero balances, got %+v", set)
	}
	if _, err := s.Balances(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore_DuplicateIdentity(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	seedPair(t, s)

	if _, err := SeedAccount(ctx, s, "a@example.com", "fresh@cryptopay"); !errors.Is(err, apperr.ErrDuplicateIdentity) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if _, err := SeedAccount(ctx, s, "new@example.com", "a-00000001@cryptopay"); !errors.Is(err, apperr.ErrDuplicateIdentity) {
		t.Fatalf("expected duplicate alias, got %v", err)
	}
	// the failed attempts must not hold the names
	if _, err := SeedAccount(ctx, s, "new@example.com", "fresh@cryptopay"); err != nil {
		t.Fatalf("expected registration to succeed: %v", err)
	}
}

func TestMemoryStore_TransferMaintainsBalance(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, b := seedPair(t, s)
	if err := SeedBalance(ctx, s, a.ID, Sandbox, 10_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := move(ctx, s, a.ID, b.ID, Sandbox, 1_500); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	ab, _ := s.Balances(ctx, a.ID)
	bb, _ := s.Balances(ctx, b.ID)
	if ab.Sandbox != 8_500 || bb.Sandbox != 1_500 {
		t.Fatalf("unexpected balances a=%s b=%s", ab.Sandbox, bb.Sandbox)
	}
	if ab.GatewayTest != 0 || bb.GatewayLive != 0 {
		t.Fatalf("other buckets changed")
	}
	for _, acc := range []Account{a, b} {
		sum, err := Sum(ctx, s, acc.ID, Sandbox)
		if err != nil {
			t.Fatalf("sum: %v", err)
		}
		set, _ := s.Balances(ctx, acc.ID)
		if sum != set.Sandbox {
			t.Fatalf("ledger sum %s disagrees with balance %s", sum, set.Sandbox)
		}
	}
}

func TestMemoryStore_FailedUnitLeavesNoTrace(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, b := seedPair(t, s)
	if err := SeedBalance(ctx, s, a.ID, Sandbox, 1_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := move(ctx, s, a.ID, b.ID, Sandbox, 5_000)
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Adjust(ctx, BalanceKey{AccountID: b.ID, Bucket: Sandbox}, 700); err != nil {
			return err
		}
		if _, err := tx.Append(ctx, Entry{AccountID: b.ID, Bucket: Sandbox, Amount: 700, Description: "in"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	ab, _ := s.Balances(ctx, a.ID)
	bb, _ := s.Balances(ctx, b.ID)
	if ab.Sandbox != 1_000 || bb.Sandbox != 0 {
		t.Fatalf("rolled back work leaked: a=%s b=%s", ab.Sandbox, bb.Sandbox)
	}
	page, _ := s.Entries(ctx, b.ID, Page{})
	if len(page.Entries) != 0 {
		t.Fatalf("expected no entries for b, got %d", len(page.Entries))
	}
}

func TestMemoryStore_CancelledBeforeCommit(t *testing.T) {
	s := NewInMemory()
	a, _ := seedPair(t, s)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Adjust(ctx, BalanceKey{AccountID: a.ID, Bucket: Sandbox}, 500); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	set, _ := s.Balances(context.Background(), a.ID)
	if set.Sandbox != 0 {
		t.Fatalf("cancelled unit committed: %s", set.Sandbox)
	}
}

func TestMemoryStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, b := seedPair(t, s)
	if err := SeedBalance(ctx, s, a.ID, Sandbox, 100_00); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- move(ctx, s, a.ID, b.ID, Sandbox, 60_00)
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("expected one success and one rejection, got ok=%d insufficient=%d", ok, insufficient)
	}
	ab, _ := s.Balances(ctx, a.ID)
	if ab.Sandbox != 40_00 {
		t.Fatalf("expected 40.00 left, got %s", ab.Sandbox)
	}
}

func TestMemoryStore_OpposingTransfersDoNotDeadlock(t *testing.T) {
	s := NewInMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a, b := seedPair(t, s)
	SeedBalance(ctx, s, a.ID, GatewayTest, 10_000)
	SeedBalance(ctx, s, b.ID, GatewayTest, 10_000)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a.ID, b.ID
			if i%2 == 1 {
				from, to = to, from
			}
			if err := move(ctx, s, from, to, GatewayTest, 100); err != nil {
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	ab, _ := s.Balances(ctx, a.ID)
	bb, _ := s.Balances(ctx, b.ID)
	if ab.GatewayTest+bb.GatewayTest != 20_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%s", ab.GatewayTest+bb.GatewayTest)
	}
}

func TestMemoryStore_EntriesNewestFirstWithCursor(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, b := seedPair(t, s)
	SeedBalance(ctx, s, a.ID, Sandbox, 10_000)
	for i := 1; i <= 5; i++ {
		if err := move(ctx, s, a.ID, b.ID, Sandbox, money.Amount(i)); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
	}

	var seen []Entry
	page := Page{Limit: 2}
	for n := 0; ; n++ {
		if n > 10 {
			t.Fatalf("pagination did not terminate")
		}
		res, err := s.Entries(ctx, a.ID, page)
		if err != nil {
			t.Fatalf("entries: %v", err)
		}
		seen = append(seen, res.Entries...)
		if res.NextCursor == "" {
			break
		}
		page.Cursor = res.NextCursor
	}

	if len(seen) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1].Seq <= seen[i].Seq {
			t.Fatalf("entries not newest first at %d", i)
		}
	}
	if seen[0].Amount != -5 || seen[len(seen)-1].Description != "Opening balance" {
		t.Fatalf("unexpected ordering: first=%+v last=%+v", seen[0], seen[len(seen)-1])
	}

	if _, err := s.Entries(ctx, a.ID, Page{Cursor: "%%%"}); !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Fatalf("expected invalid cursor error, got %v", err)
	}
}

func TestMemoryStore_ClaimPaymentOnce(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, _ := seedPair(t, s)

	claim := func() error {
		return s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.ClaimPayment(ctx, PaymentClaim{OrderHandle: "order_1", PaymentHandle: "pay_1", AccountID: a.ID})
		})
	}
	if err := claim(); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := claim(); !errors.Is(err, apperr.ErrDuplicatePayment) {
		t.Fatalf("expected duplicate payment, got %v", err)
	}
}

func TestMemoryStore_ConcurrentRegistrationsWithSameEmail(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := SeedAccount(ctx, s, "same@example.com", fmt.Sprintf("same-%d@cryptopay", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
		} else if !errors.Is(err, apperr.ErrDuplicateIdentity) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one account, got %d", created)
	}
}

func TestMerchantPerAccount(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, _ := seedPair(t, s)

	create := func(id string) error {
		return s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.CreateMerchant(ctx, Merchant{ID: id, AccountID: a.ID, BusinessName: "Chai Stall", PaymentTarget: "merchant:" + a.ID})
		})
	}
	if err := create("m1"); err != nil {
		t.Fatalf("create merchant: %v", err)
	}
	if err := create("m2"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	m, err := s.MerchantByAccount(ctx, a.ID)
	if err != nil || m.ID != "m1" {
		t.Fatalf("unexpected merchant %+v err=%v", m, err)
	}
}

func TestBucketForMode(t *testing.T) {
	cases := map[string]Bucket{
		"testing":      Sandbox,
		"test":         GatewayTest,
		"LIVE":         GatewayLive,
		"gateway_live": GatewayLive,
	}
	for mode, want := range cases {
		got, err := BucketForMode(mode)
		if err != nil || got != want {
			t.Fatalf("mode %q: expected %s got %s (%v)", mode, want, got, err)
		}
	}
	if _, err := BucketForMode("prod"); !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Fatalf("expected invalid mode error, got %v", err)
	}
}

func TestMemoryStore_EntriesFollowInsertionOrderWhenClockStepsBack(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, b := seedPair(t, s)

	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(-time.Second)
		return clock
	}
	SeedBalance(ctx, s, a.ID, Sandbox, 100)
	for i := 1; i <= 3; i++ {
		if err := move(ctx, s, a.ID, b.ID, Sandbox, money.Amount(i)); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
	}

	first, err := s.Entries(ctx, a.ID, Page{Limit: 2})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	rest, err := s.Entries(ctx, a.ID, Page{Limit: 2, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	seen := append(first.Entries, rest.Entries...)
	want := []money.Amount{-3, -2, -1, 100}
	if len(seen) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(seen))
	}
	for i, e := range seen {
		if e.Amount != want[i] {
			t.Fatalf("entry %d: expected %s got %s", i, want[i], e.Amount)
		}
	}
}

func TestMemoryStore_CreditOverflowIsRejected(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, _ := seedPair(t, s)
	near := money.Amount(math.MaxInt64 - 5)
	if err := SeedBalance(ctx, s, a.ID, Sandbox, near); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Adjust(ctx, BalanceKey{AccountID: a.ID, Bucket: Sandbox}, 10)
		return err
	})
	if !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	set, _ := s.Balances(ctx, a.ID)
	if set.Sandbox != near {
		t.Fatalf("balance changed to %s", set.Sandbox)
	}
}

func TestMemoryStore_UnknownAccountTakesNoRowLock(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.Adjust(ctx, BalanceKey{AccountID: fmt.Sprintf("ghost-%d", i), Bucket: Sandbox}, 100)
			return err
		})
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}

	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if len(s.rowLocks) != 0 {
		t.Fatalf("expected no row locks for unknown accounts, got %d", len(s.rowLocks))
	}
}
