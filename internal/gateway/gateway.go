// Package gateway is the contract with the external payment processor that
// issues checkout orders and executes outbound payments.
package gateway

import (
	"context"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/ledger"
	"github.com/cryptopay/cryptopay/internal/money"
)

// StatusCaptured is the only payment status treated as success.
const StatusCaptured = "captured"

// Mode selects the gateway account (test or live keys).
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// ParseMode accepts "test" or "live".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTest, ModeLive:
		return Mode(s), nil
	}
	return "", apperr.Invalid("invalid mode " + s)
}

// Bucket is the balance bucket funded through this mode.
func (m Mode) Bucket() ledger.Bucket {
	if m == ModeLive {
		return ledger.GatewayLive
	}
	return ledger.GatewayTest
}

// ModeFor returns the gateway mode backing bucket. The sandbox bucket has none.
func ModeFor(b ledger.Bucket) (Mode, error) {
	switch b {
	case ledger.GatewayTest:
		return ModeTest, nil
	case ledger.GatewayLive:
		return ModeLive, nil
	}
	return "", apperr.Invalid("bucket " + string(b) + " is not gateway funded")
}

// OrderRequest asks the gateway for a checkout order.
type OrderRequest struct {
	Amount money.Amount
	Mode   Mode
	Notes  map[string]string
}

// Order is a gateway-issued order handle.
type Order struct {
	Handle   string
	Amount   money.Amount
	Currency string
	Receipt  string
	Status   string
}

// PaymentRequest asks the gateway to pay an external alias.
type PaymentRequest struct {
	Amount      money.Amount
	Destination string
	Mode        Mode
}

// Payment is the gateway's answer to a payment request.
type Payment struct {
	Handle string
	Status string
}

// Captured reports whether the payment settled.
func (p Payment) Captured() bool {
	return p.Status == StatusCaptured
}

// Client is the outbound gateway contract. Implementations must honour ctx
// deadlines and report failures as apperr Unavailable.
type Client interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error)
}
