package wallet

import (
	"time"

	"github.com/cryptopay/cryptopay/internal/ledger"
	"github.com/cryptopay/cryptopay/internal/money"
)

// Balances is the account's balance set at a point in time.
type Balances struct {
	AccountID   string
	Sandbox     money.Amount
	GatewayTest money.Amount
	GatewayLive money.Amount
	AsOf        time.Time
}

func fromSet(set ledger.BalanceSet, asOf time.Time) Balances {
	return Balances{
		AccountID:   set.AccountID,
		Sandbox:     set.Sandbox,
		GatewayTest: set.GatewayTest,
		GatewayLive: set.GatewayLive,
		AsOf:        asOf,
	}
}

// PaymentAddress is what others need to pay the account.
type PaymentAddress struct {
	Alias       string
	DisplayName string
	URI         string
}
