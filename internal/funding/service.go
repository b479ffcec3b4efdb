package funding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/gateway"
	"github.com/cryptopay/cryptopay/internal/ledger"
	"github.com/cryptopay/cryptopay/internal/money"
	"github.com/cryptopay/cryptopay/internal/notification"
	"github.com/cryptopay/cryptopay/internal/payments"
)

// Intent is what a confirmed gateway payment is applied to.
type Intent string

const (
	IntentAddMoney Intent = "ADD_MONEY"
	IntentTransfer Intent = "TRANSFER"
)

// ParseIntent accepts ADD_MONEY or TRANSFER. Empty defaults to ADD_MONEY.
func ParseIntent(s string) (Intent, error) {
	switch Intent(strings.ToUpper(strings.TrimSpace(s))) {
	case "", IntentAddMoney:
		return IntentAddMoney, nil
	case IntentTransfer:
		return IntentTransfer, nil
	}
	return "", apperr.Invalid("invalid intent " + s)
}

// keyIDs is implemented by gateway clients that expose checkout key ids.
type keyIDs interface {
	KeyID(mode gateway.Mode) string
}

// Service funds the gateway buckets: it opens checkout orders and applies
// signed payment confirmations exactly once.
type Service struct {
	store    ledger.Store
	gateway  gateway.Client
	signer   *gateway.Signer
	engine   *payments.Service
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService prepares the funding service.
func NewService(store ledger.Store, gw gateway.Client, signer *gateway.Signer, engine *payments.Service, notifier notification.Notifier, logger *slog.Logger) (*Service, error) {
	if store == nil || engine == nil {
		return nil, fmt.Errorf("store and transfer engine are required")
	}
	if gw == nil {
		gw = &gateway.StaticClient{}
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		gateway:  gw,
		signer:   signer,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// OrderInput asks for a checkout order.
type OrderInput struct {
	AccountID string
	Amount    money.Amount
	Mode      string
	Intent    string
}

// OrderResult is what the client needs to open checkout.
type OrderResult struct {
	Handle   string
	Amount   money.Amount
	Currency string
	KeyID    string
	Mode     gateway.Mode
	Intent   Intent
}

// CreateOrder registers a gateway order for accountID and remembers it so
// the later confirmation can be checked against it.
func (s *Service) CreateOrder(ctx context.Context, in OrderInput) (OrderResult, error) {
	if in.Amount <= 0 {
		return OrderResult{}, apperr.Invalid("amount must be positive")
	}
	mode, err := gateway.ParseMode(in.Mode)
	if err != nil {
		return OrderResult{}, err
	}
	intent, err := ParseIntent(in.Intent)
	if err != nil {
		return OrderResult{}, err
	}
	if _, err := s.store.Account(ctx, in.AccountID); err != nil {
		return OrderResult{}, err
	}

	order, err := s.gateway.CreateOrder(ctx, gateway.OrderRequest{
		Amount: in.Amount,
		Mode:   mode,
		Notes:  map[string]string{"type": string(intent), "mode": string(mode)},
	})
	if err != nil {
		return OrderResult{}, err
	}
	if err := s.store.SaveOrder(ctx, ledger.Order{
		Handle:    order.Handle,
		AccountID: in.AccountID,
		Amount:    in.Amount,
		Bucket:    mode.Bucket(),
		CreatedAt: s.now(),
	}); err != nil {
		return OrderResult{}, err
	}

	res := OrderResult{
		Handle:   order.Handle,
		Amount:   in.Amount,
		Currency: money.Currency,
		Mode:     mode,
		Intent:   intent,
	}
	if k, ok := s.gateway.(keyIDs); ok {
		res.KeyID = k.KeyID(mode)
	}
	return res, nil
}

// ConfirmInput is a signed confirmation relayed by the client after checkout.
type ConfirmInput struct {
	AccountID     string
	OrderHandle   string
	PaymentHandle string
	Signature     string
	Amount        money.Amount
	Mode          string
	Intent        string
	Destination   string
}

// ConfirmResult reports what the confirmation was applied to.
type ConfirmResult struct {
	Intent     Intent
	Bucket     ledger.Bucket
	NewBalance money.Amount
	EntryID    string
	Recipient  string
}

// Confirm verifies a gateway confirmation and applies its intent. The
// (order, payment) pair is claimed in the same unit of work as the balance
// change, so a repeat fails with DuplicatePayment and credits nothing.
func (s *Service) Confirm(ctx context.Context, in ConfirmInput) (ConfirmResult, error) {
	mode, intent, err := validateConfirm(in)
	if err != nil {
		return ConfirmResult{}, err
	}
	if err := s.signer.Verify(mode, in.OrderHandle, in.PaymentHandle, in.Signature); err != nil {
		return ConfirmResult{}, err
	}

	order, err := s.store.Order(ctx, in.OrderHandle)
	if err != nil {
		return ConfirmResult{}, err
	}
	switch {
	case order.AccountID != in.AccountID:
		return ConfirmResult{}, apperr.NotFound("order not found")
	case order.Amount != in.Amount:
		return ConfirmResult{}, apperr.Invalid(fmt.Sprintf("amount %s does not match order amount %s", in.Amount, order.Amount))
	case order.Bucket != mode.Bucket():
		return ConfirmResult{}, apperr.Invalid("mode does not match order")
	}

	bucket := mode.Bucket()
	res := ConfirmResult{Intent: intent, Bucket: bucket}
	var transfer payments.Applied
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		err := tx.ClaimPayment(ctx, ledger.PaymentClaim{
			OrderHandle:   in.OrderHandle,
			PaymentHandle: in.PaymentHandle,
			AccountID:     in.AccountID,
			ClaimedAt:     s.now(),
		})
		if err != nil {
			return err
		}

		if intent == IntentAddMoney {
			balance, entry, err := payments.Credit(ctx, tx, in.AccountID, bucket, in.Amount,
				fmt.Sprintf("Added from bank via gateway (%s)", mode), in.PaymentHandle)
			if err != nil {
				return err
			}
			res.NewBalance, res.EntryID = balance, entry.ID
			return nil
		}

		transfer, err = s.engine.Apply(ctx, tx, payments.TransferInput{
			AccountID:   in.AccountID,
			Bucket:      bucket,
			Destination: in.Destination,
			Amount:      in.Amount,
		}, in.PaymentHandle)
		if err != nil {
			return err
		}
		out := transfer.Result()
		res.NewBalance, res.EntryID, res.Recipient = out.NewBalance, out.EntryID, out.Recipient
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindDuplicatePayment {
			s.logger.WarnContext(ctx, "duplicate gateway confirmation",
				slog.String("order_handle", in.OrderHandle),
				slog.String("payment_handle", in.PaymentHandle),
			)
		}
		return ConfirmResult{}, err
	}

	if intent == IntentTransfer {
		s.engine.Notify(ctx, transfer)
	} else if s.notifier != nil {
		msg := notification.Message{
			Kind:      notification.KindFundsAdded,
			AccountID: in.AccountID,
			Body:      fmt.Sprintf("Added %s to your %s balance", in.Amount, mode),
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "notification failed", slog.Any("error", err))
		}
	}
	return res, nil
}

func validateConfirm(in ConfirmInput) (gateway.Mode, Intent, error) {
	switch {
	case in.AccountID == "":
		return "", "", apperr.Invalid("account id is required")
	case in.OrderHandle == "" || in.PaymentHandle == "" || in.Signature == "":
		return "", "", apperr.Invalid("order id, payment id and signature are required")
	case in.Amount <= 0:
		return "", "", apperr.Invalid("amount must be positive")
	}
	mode, err := gateway.ParseMode(in.Mode)
	if err != nil {
		return "", "", err
	}
	intent, err := ParseIntent(in.Intent)
	if err != nil {
		return "", "", err
	}
	if intent == IntentTransfer && strings.TrimSpace(in.Destination) == "" {
		return "", "", apperr.Invalid("destination is required for a transfer")
	}
	return mode, intent, nil
}
