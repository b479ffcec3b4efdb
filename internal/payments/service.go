package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/gateway"
	"github.com/cryptopay/cryptopay/internal/identity"
	"github.com/cryptopay/cryptopay/internal/ledger"
	"github.com/cryptopay/cryptopay/internal/money"
	"github.com/cryptopay/cryptopay/internal/notification"
)

const defaultGatewayTimeout = 10 * time.Second

// Service is the transfer engine. Every balance mutation it performs commits
// together with its ledger entries or not at all.
type Service struct {
	store          ledger.Store
	gateway        gateway.Client
	notifier       notification.Notifier
	logger         *slog.Logger
	gatewayTimeout time.Duration
}

// NewService constructs the transfer engine. gw may be nil, in which case
// sends to unregistered aliases fail as unavailable.
func NewService(store ledger.Store, gw gateway.Client, notifier notification.Notifier, logger *slog.Logger, gatewayTimeout time.Duration) *Service {
	if gatewayTimeout <= 0 {
		gatewayTimeout = defaultGatewayTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, gateway: gw, notifier: notifier, logger: logger, gatewayTimeout: gatewayTimeout}
}

// TransferInput describes one movement of funds out of the caller's bucket.
// Destination is a payment alias or a merchant id.
type TransferInput struct {
	AccountID   string
	Bucket      ledger.Bucket
	Destination string
	Amount      money.Amount
}

// TransferResult is the sender's view of a committed transfer.
type TransferResult struct {
	NewBalance    money.Amount
	EntryID       string
	Recipient     string
	External      bool
	PaymentHandle string
}

type destination int

const (
	byAliasOrMerchant destination = iota
	byMerchant
)

// applied carries what Apply did so the caller can notify after commit.
type applied struct {
	result      TransferResult
	recipientID string
	sender      ledger.Account
	bucket      ledger.Bucket
	amount      money.Amount
}

// AddFunds credits the sandbox bucket of accountID. Other buckets can only be
// funded through the gateway.
func (s *Service) AddFunds(ctx context.Context, accountID string, bucket ledger.Bucket, amount money.Amount) (money.Amount, error) {
	if bucket != ledger.Sandbox {
		return 0, apperr.Invalid("funds can only be added directly to the sandbox bucket")
	}
	var balance money.Amount
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		balance, _, err = Credit(ctx, tx, accountID, ledger.Sandbox, amount, "Sandbox top-up", "")
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify(ctx, notification.Message{
		Kind:      notification.KindFundsAdded,
		AccountID: accountID,
		Body:      fmt.Sprintf("Added %s to your sandbox balance", amount),
	})
	return balance, nil
}

// Credit is the one-sided mutation: it credits bucket and appends a single
// entry inside tx.
func Credit(ctx context.Context, tx ledger.Tx, accountID string, bucket ledger.Bucket, amount money.Amount, description, ref string) (money.Amount, ledger.Entry, error) {
	if accountID == "" {
		return 0, ledger.Entry{}, apperr.Invalid("account id is required")
	}
	if amount <= 0 {
		return 0, ledger.Entry{}, apperr.Invalid("amount must be positive")
	}
	key := ledger.BalanceKey{AccountID: accountID, Bucket: bucket}
	if err := tx.LockBalances(ctx, key); err != nil {
		return 0, ledger.Entry{}, err
	}
	balance, err := tx.Adjust(ctx, key, amount)
	if err != nil {
		return 0, ledger.Entry{}, err
	}
	entry, err := tx.Append(ctx, ledger.Entry{
		AccountID:   accountID,
		Bucket:      bucket,
		Amount:      amount,
		Description: description,
		ExternalRef: ref,
	})
	if err != nil {
		return 0, ledger.Entry{}, err
	}
	return balance, entry, nil
}

// Transfer moves funds to an alias or merchant. From the live bucket, an
// alias that is well formed but unknown is paid through the gateway.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	return s.run(ctx, in, byAliasOrMerchant)
}

// PayMerchant pays merchantID from the bucket selected by mode.
func (s *Service) PayMerchant(ctx context.Context, accountID, merchantID, mode string, amount money.Amount) (TransferResult, error) {
	bucket, err := ledger.BucketForMode(mode)
	if err != nil {
		return TransferResult{}, err
	}
	return s.run(ctx, TransferInput{AccountID: accountID, Bucket: bucket, Destination: merchantID, Amount: amount}, byMerchant)
}

func (s *Service) run(ctx context.Context, in TransferInput, dest destination) (TransferResult, error) {
	var out applied
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		out, err = s.apply(ctx, tx, in, "", dest)
		return err
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.afterCommit(ctx, out)
	return out.result, nil
}

// Apply runs a transfer inside a unit of work owned by the caller, tagging
// internal entries with ref. The caller must call Notify after commit.
func (s *Service) Apply(ctx context.Context, tx ledger.Tx, in TransferInput, ref string) (Applied, error) {
	out, err := s.apply(ctx, tx, in, ref, byAliasOrMerchant)
	return Applied{applied: out}, err
}

// Applied is the outcome of Apply, pending commit.
type Applied struct {
	applied
}

// Result is the sender's view of the transfer.
func (a Applied) Result() TransferResult {
	return a.result
}

// Notify sends post-commit notifications for a transfer made through Apply.
func (s *Service) Notify(ctx context.Context, a Applied) {
	s.afterCommit(ctx, a.applied)
}

func validate(in TransferInput) error {
	switch {
	case in.AccountID == "":
		return apperr.Invalid("account id is required")
	case !in.Bucket.Valid():
		return apperr.Invalid("unknown bucket " + string(in.Bucket))
	case strings.TrimSpace(in.Destination) == "":
		return apperr.Invalid("destination is required")
	case in.Amount <= 0:
		return apperr.Invalid("amount must be positive")
	}
	return nil
}

func (s *Service) apply(ctx context.Context, tx ledger.Tx, in TransferInput, ref string, dest destination) (applied, error) {
	if err := validate(in); err != nil {
		return applied{}, err
	}
	in.Destination = identity.Sanitize(in.Destination)

	sender, err := tx.Account(ctx, in.AccountID)
	if err != nil {
		return applied{}, err
	}

	var (
		recipient ledger.Account
		debitText string
	)
	switch {
	case dest == byAliasOrMerchant && identity.ValidAlias(in.Destination):
		recipient, err = tx.AccountByAlias(ctx, in.Destination)
		if apperr.KindOf(err) == apperr.KindNotFound && in.Bucket == ledger.GatewayLive {
			return s.sendExternal(ctx, tx, sender, in, ref)
		}
		if err != nil {
			return applied{}, err
		}
		debitText = fmt.Sprintf("Transfer to %s (%s)", recipient.Alias, in.Bucket.Label())
	default:
		merchant, err := tx.Merchant(ctx, in.Destination)
		if err != nil {
			return applied{}, err
		}
		recipient, err = tx.Account(ctx, merchant.AccountID)
		if err != nil {
			return applied{}, err
		}
		debitText = fmt.Sprintf("Payment to merchant %s (%s)", merchant.BusinessName, in.Bucket.Label())
	}

	if recipient.ID == sender.ID {
		return applied{}, apperr.Invalid("cannot transfer to the same account and bucket")
	}

	src := ledger.BalanceKey{AccountID: sender.ID, Bucket: in.Bucket}
	dst := ledger.BalanceKey{AccountID: recipient.ID, Bucket: in.Bucket}
	if err := tx.LockBalances(ctx, src, dst); err != nil {
		return applied{}, err
	}
	balance, err := tx.Adjust(ctx, src, -in.Amount)
	if err != nil {
		return applied{}, err
	}
	if _, err := tx.Adjust(ctx, dst, in.Amount); err != nil {
		return applied{}, err
	}
	debit, err := tx.Append(ctx, ledger.Entry{
		AccountID:   sender.ID,
		Bucket:      in.Bucket,
		Amount:      -in.Amount,
		Description: debitText,
		ExternalRef: ref,
	})
	if err != nil {
		return applied{}, err
	}
	_, err = tx.Append(ctx, ledger.Entry{
		AccountID:   recipient.ID,
		Bucket:      in.Bucket,
		Amount:      in.Amount,
		Description: fmt.Sprintf("Received from %s (%s)", sender.Alias, in.Bucket.Label()),
		ExternalRef: ref,
	})
	if err != nil {
		return applied{}, err
	}

	return applied{
		result:      TransferResult{NewBalance: balance, EntryID: debit.ID, Recipient: recipient.Alias},
		recipientID: recipient.ID,
		sender:      sender,
		bucket:      in.Bucket,
		amount:      in.Amount,
	}, nil
}

// sendExternal pays an unregistered alias through the gateway while holding
// the sender's balance lock. Only a captured payment is debited. The entry is
// tagged with ref when the send settles a confirmed payment, and with the
// outbound payment handle otherwise.
func (s *Service) sendExternal(ctx context.Context, tx ledger.Tx, sender ledger.Account, in TransferInput, ref string) (applied, error) {
	if s.gateway == nil {
		return applied{}, apperr.Unavailable("gateway is not configured", nil)
	}
	key := ledger.BalanceKey{AccountID: sender.ID, Bucket: ledger.GatewayLive}
	if err := tx.LockBalances(ctx, key); err != nil {
		return applied{}, err
	}
	balance, err := tx.Balance(ctx, key)
	if err != nil {
		return applied{}, err
	}
	if balance < in.Amount {
		return applied{}, apperr.New(apperr.KindInsufficientFunds,
			fmt.Sprintf("insufficient balance in %s: have %s, need %s", key.Bucket, balance, in.Amount))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	payment, err := s.gateway.CreatePayment(callCtx, gateway.PaymentRequest{
		Amount:      in.Amount,
		Destination: in.Destination,
		Mode:        gateway.ModeLive,
	})
	if err != nil {
		return applied{}, apperr.Unavailable("gateway payment failed", err)
	}
	if !payment.Captured() {
		s.logger.WarnContext(ctx, "gateway payment not captured",
			slog.String("account_id", sender.ID),
			slog.String("payment_handle", payment.Handle),
			slog.String("status", payment.Status),
		)
		return applied{}, apperr.New(apperr.KindPaymentNotCaptured, "payment not captured: status "+payment.Status)
	}

	next, err := tx.Adjust(ctx, key, -in.Amount)
	if err != nil {
		return applied{}, err
	}
	description := fmt.Sprintf("Transfer to %s via gateway (live)", in.Destination)
	entryRef := payment.Handle
	if ref != "" {
		description += ", payout " + payment.Handle
		entryRef = ref
	}
	entry, err := tx.Append(ctx, ledger.Entry{
		AccountID:   sender.ID,
		Bucket:      ledger.GatewayLive,
		Amount:      -in.Amount,
		Description: description,
		ExternalRef: entryRef,
	})
	if err != nil {
		return applied{}, err
	}
	return applied{
		result: TransferResult{
			NewBalance:    next,
			EntryID:       entry.ID,
			Recipient:     in.Destination,
			External:      true,
			PaymentHandle: payment.Handle,
		},
		sender: sender,
		bucket: ledger.GatewayLive,
		amount: in.Amount,
	}, nil
}

func (s *Service) afterCommit(ctx context.Context, a applied) {
	if a.result.External {
		s.logger.InfoContext(ctx, "external transfer captured",
			slog.String("account_id", a.sender.ID),
			slog.String("payment_handle", a.result.PaymentHandle),
		)
		return
	}
	if a.recipientID == "" {
		return
	}
	s.notify(ctx, notification.Message{
		Kind:      notification.KindTransferReceived,
		AccountID: a.recipientID,
		Body:      fmt.Sprintf("You received %s from %s (%s)", a.amount, a.sender.Alias, a.bucket.Label()),
	})
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
