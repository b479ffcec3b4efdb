package payments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/gateway"
	"github.com/cryptopay/cryptopay/internal/ledger"
	"github.com/cryptopay/cryptopay/internal/logging"
	"github.com/cryptopay/cryptopay/internal/money"
	"github.com/cryptopay/cryptopay/internal/notification"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateOrder(ctx context.Context, req gateway.OrderRequest) (gateway.Order, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.Order), args.Error(1)
}

func (m *mockGateway) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.Payment, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.Payment), args.Error(1)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type fixture struct {
	store    *ledger.MemoryStore
	gw       *mockGateway
	notifier *recordingNotifier
	svc      *Service
	alice    ledger.Account
	bob      ledger.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:    ledger.NewInMemory(),
		gw:       &mockGateway{},
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(f.store, f.gw, f.notifier, logging.Discard(), 0)

	var err error
	f.alice, err = ledger.SeedAccount(ctx, f.store, "alice@example.com", "alice-0000aaaa@cryptopay")
	require.NoError(t, err)
	f.bob, err = ledger.SeedAccount(ctx, f.store, "bob@example.com", "bob-0000bbbb@cryptopay")
	require.NoError(t, err)
	return f
}

func (f *fixture) balance(t *testing.T, id string, b ledger.Bucket) money.Amount {
	t.Helper()
	set, err := f.store.Balances(context.Background(), id)
	require.NoError(t, err)
	return set.Get(b)
}

// agrees checks that the stored balance equals the sum of its entries.
func (f *fixture) agrees(t *testing.T, id string, b ledger.Bucket) {
	t.Helper()
	sum, err := ledger.Sum(context.Background(), f.store, id, b)
	require.NoError(t, err)
	assert.Equal(t, f.balance(t, id, b), sum, "balance and ledger disagree for %s/%s", id, b)
}

func TestAddFundsSandboxOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bal, err := f.svc.AddFunds(ctx, f.alice.ID, ledger.Sandbox, 5000)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, bal)
	f.agrees(t, f.alice.ID, ledger.Sandbox)

	page, err := f.store.Entries(ctx, f.alice.ID, ledger.Page{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "Sandbox top-up", page.Entries[0].Description)

	_, err = f.svc.AddFunds(ctx, f.alice.ID, ledger.GatewayLive, 5000)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
	_, err = f.svc.AddFunds(ctx, f.alice.ID, ledger.Sandbox, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
	_, err = f.svc.AddFunds(ctx, "missing", ledger.Sandbox, 100)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notification.KindFundsAdded, f.notifier.sent[0].Kind)
}

func TestTransferByAlias(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.SeedBalance(ctx, f.store, f.alice.ID, ledger.Sandbox, 10000))

	res, err := f.svc.Transfer(ctx, TransferInput{
		AccountID:   f.alice.ID,
		Bucket:      ledger.Sandbox,
		Destination: f.bob.Alias,
		Amount:      2550,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 7450, res.NewBalance)
	assert.Equal(t, f.bob.Alias, res.Recipient)
	assert.False(t, res.External)

	assert.EqualValues(t, 7450, f.balance(t, f.alice.ID, ledger.Sandbox))
	assert.EqualValues(t, 2550, f.balance(t, f.bob.ID, ledger.Sandbox))
	assert.Zero(t, f.balance(t, f.bob.ID, ledger.GatewayTest))
	f.agrees(t, f.alice.ID, ledger.Sandbox)
	f.agrees(t, f.bob.ID, ledger.Sandbox)

	sent, err := f.store.Entries(ctx, f.alice.ID, ledger.Page{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "Transfer to "+f.bob.Alias+" (testing)", sent.Entries[0].Description)
	assert.Equal(t, res.EntryID, sent.Entries[0].ID)

	got, err := f.store.Entries(ctx, f.bob.ID, ledger.Page{})
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "Received from "+f.alice.Alias+" (testing)", got.Entries[0].Description)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, f.bob.ID, f.notifier.sent[0].AccountID)
	assert.Equal(t, notification.KindTransferReceived, f.notifier.sent[0].Kind)
	f.gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestTransferFailuresLeaveNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.SeedBalance(ctx, f.store, f.alice.ID, ledger.GatewayTest, 1000))

	cases := []struct {
		name string
		in   TransferInput
		want error
	}{
		{"insufficient", TransferInput{f.alice.ID, ledger.GatewayTest, f.bob.Alias, 1001}, apperr.ErrInsufficientFunds},
		{"self", TransferInput{f.alice.ID, ledger.GatewayTest, f.alice.Alias, 10}, apperr.ErrInvalidRequest},
		{"zero", TransferInput{f.alice.ID, ledger.GatewayTest, f.bob.Alias, 0}, apperr.ErrInvalidRequest},
		{"negative", TransferInput{f.alice.ID, ledger.GatewayTest, f.bob.Alias, -5}, apperr.ErrInvalidRequest},
		{"unknown alias off live", TransferInput{f.alice.ID, ledger.GatewayTest, "nobody@bank", 10}, apperr.ErrNotFound},
		{"unknown merchant", TransferInput{f.alice.ID, ledger.GatewayTest, "no-such-merchant", 10}, apperr.ErrNotFound},
		{"bad bucket", TransferInput{f.alice.ID, ledger.Bucket("gold"), f.bob.Alias, 10}, apperr.ErrInvalidRequest},
		{"unknown sender", TransferInput{"missing", ledger.GatewayTest, f.bob.Alias, 10}, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Transfer(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.EqualValues(t, 1000, f.balance(t, f.alice.ID, ledger.GatewayTest))
	assert.Zero(t, f.balance(t, f.bob.ID, ledger.GatewayTest))
	f.agrees(t, f.alice.ID, ledger.GatewayTest)
	f.agrees(t, f.bob.ID, ledger.GatewayTest)
	assert.Empty(t, f.notifier.sent)
}

func TestPayMerchant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	merchant := ledger.Merchant{ID: "m-1", AccountID: f.bob.ID, BusinessName: "Chai Point", PaymentTarget: "merchant:" + f.bob.ID}
	require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.CreateMerchant(ctx, merchant)
	}))
	require.NoError(t, ledger.SeedBalance(ctx, f.store, f.alice.ID, ledger.GatewayTest, 900))

	res, err := f.svc.PayMerchant(ctx, f.alice.ID, "m-1", "test", 400)
	require.NoError(t, err)
	assert.EqualValues(t, 500, res.NewBalance)
	assert.EqualValues(t, 400, f.balance(t, f.bob.ID, ledger.GatewayTest))

	page, err := f.store.Entries(ctx, f.alice.ID, ledger.Page{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "Payment to merchant Chai Point (test)", page.Entries[0].Description)

	// Merchant ids are also accepted by the generic transfer.
	_, err = f.svc.Transfer(ctx, TransferInput{AccountID: f.alice.ID, Bucket: ledger.GatewayTest, Destination: "m-1", Amount: 100})
	require.NoError(t, err)
	assert.EqualValues(t, 500, f.balance(t, f.bob.ID, ledger.GatewayTest))

	_, err = f.svc.PayMerchant(ctx, f.bob.ID, "m-1", "test", 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest, "merchant cannot pay itself")
	_, err = f.svc.PayMerchant(ctx, f.alice.ID, f.bob.Alias, "test", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "pay merchant does not resolve aliases")
	_, err = f.svc.PayMerchant(ctx, f.alice.ID, "m-1", "prod", 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	f.agrees(t, f.alice.ID, ledger.GatewayTest)
	f.agrees(t, f.bob.ID, ledger.GatewayTest)
}

func TestExternalTransferCaptured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.SeedBalance(ctx, f.store, f.alice.ID, ledger.GatewayLive, 10000))

	f.gw.On("CreatePayment", mock.Anything, gateway.PaymentRequest{Amount: 3000, Destination: "friend@okbank", Mode: gateway.ModeLive}).
		Return(gateway.Payment{Handle: "pay_ext1", Status: gateway.StatusCaptured}, nil).Once()

	res, err := f.svc.Transfer(ctx, TransferInput{
		AccountID:   f.alice.ID,
		Bucket:      ledger.GatewayLive,
		Destination: "friend@okbank",
		Amount:      3000,
	})
	require.NoError(t, err)
	f.gw.AssertExpectations(t)

	assert.True(t, res.External)
	assert.Equal(t, "pay_ext1", res.PaymentHandle)
	assert.EqualValues(t, 7000, res.NewBalance)
	f.agrees(t, f.alice.ID, ledger.GatewayLive)

	page, err := f.store.Entries(ctx, f.alice.ID, ledger.Page{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "Transfer to friend@okbank via gateway (live)", page.Entries[0].Description)
	assert.Equal(t, "pay_ext1", page.Entries[0].ExternalRef)
	assert.Empty(t, f.notifier.sent)
}

func TestExternalTransferNotCaptured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.SeedBalance(ctx, f.store, f.alice.ID, ledger.GatewayLive, 10000))

	f.gw.On("CreatePayment", mock.Anything, mock.Anything).
		Return(gateway.Payment{Handle: "pay_ext2", Status: "failed"}, nil).Once()

	_, err := f.svc.Transfer(ctx, TransferInput{AccountID: f.alice.ID, Bucket: ledger.GatewayLive, Destination: "friend@okbank", Amount: 3000})
	assert.ErrorIs(t, err, apperr.ErrPaymentNotCaptured)
	assert.EqualValues(t, 10000, f.balance(t, f.alice.ID, ledger.GatewayLive))
	f.agrees(t, f.alice.ID, ledger.GatewayLive)
}

func TestExternalTransferGatewayDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.SeedBalance(ctx, f.store, f.alice.ID, ledger.GatewayLive, 10000))

	f.gw.On("CreatePayment", mock.Anything, mock.Anything).
		Return(gateway.Payment{}, errors.New("connection refused")).Once()

	_, err := f.svc.Transfer(ctx, TransferInput{AccountID: f.alice.ID, Bucket: ledger.GatewayLive, Destination: "friend@okbank", Amount: 3000})
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.EqualValues(t, 10000, f.balance(t, f.alice.ID, ledger.GatewayLive))
}

func TestExternalTransferChecksFundsBeforeCallingGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.SeedBalance(ctx, f.store, f.alice.ID, ledger.GatewayLive, 100))

	_, err := f.svc.Transfer(ctx, TransferInput{AccountID: f.alice.ID, Bucket: ledger.GatewayLive, Destination: "friend@okbank", Amount: 3000})
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	f.gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestExternalTransferWithoutGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(f.store, nil, nil, logging.Discard(), 0)
	require.NoError(t, ledger.SeedBalance(ctx, f.store, f.alice.ID, ledger.GatewayLive, 100))

	_, err := svc.Transfer(ctx, TransferInput{AccountID: f.alice.ID, Bucket: ledger.GatewayLive, Destination: "friend@okbank", Amount: 10})
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.SeedBalance(ctx, f.store, f.alice.ID, ledger.Sandbox, 1000))

	var (
		wg sync.WaitGroup
		ok atomic.Int64
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(ctx, TransferInput{AccountID: f.alice.ID, Bucket: ledger.Sandbox, Destination: f.bob.Alias, Amount: 100})
			if err == nil {
				ok.Add(1)
				return
			}
			assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok.Load())
	assert.Zero(t, f.balance(t, f.alice.ID, ledger.Sandbox))
	assert.EqualValues(t, 1000, f.balance(t, f.bob.ID, ledger.Sandbox))
	f.agrees(t, f.alice.ID, ledger.Sandbox)
	f.agrees(t, f.bob.ID, ledger.Sandbox)
}

func TestApplyInsideCallerTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.SeedBalance(ctx, f.store, f.alice.ID, ledger.GatewayTest, 500))

	var out Applied
	err := f.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		out, err = f.svc.Apply(ctx, tx, TransferInput{AccountID: f.alice.ID, Bucket: ledger.GatewayTest, Destination: f.bob.Alias, Amount: 200}, "pay_ref")
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 300, out.Result().NewBalance)
	assert.Empty(t, f.notifier.sent, "no notification before Notify")

	f.svc.Notify(ctx, out)
	require.Len(t, f.notifier.sent, 1)

	page, err := f.store.Entries(ctx, f.bob.ID, ledger.Page{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "pay_ref", page.Entries[0].ExternalRef)

	// A failing caller tx discards the transfer.
	boom := errors.New("boom")
	err = f.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := f.svc.Apply(ctx, tx, TransferInput{AccountID: f.alice.ID, Bucket: ledger.GatewayTest, Destination: f.bob.Alias, Amount: 100}, "pay_ref2"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 300, f.balance(t, f.alice.ID, ledger.GatewayTest))
	f.agrees(t, f.alice.ID, ledger.GatewayTest)
}
