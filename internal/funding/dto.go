package funding

import "github.com/cryptopay/cryptopay/internal/money"

// OrderRequest asks for a checkout order.
type OrderRequest struct {
	Amount money.Amount `json:"amount"`
	Mode   string       `json:"mode"`
	Intent string       `json:"intent"`
}

// OrderResponse carries what checkout needs to open the payment sheet.
type OrderResponse struct {
	OrderID  string       `json:"order_id"`
	Amount   money.Amount `json:"amount"`
	Minor    int64        `json:"amount_minor"`
	Currency string       `json:"currency"`
	KeyID    string       `json:"key_id"`
	Mode     string       `json:"mode"`
	Intent   string       `json:"intent"`
}

// ConfirmRequest relays the checkout result.
type ConfirmRequest struct {
	OrderID     string       `json:"order_id"`
	PaymentID   string       `json:"payment_id"`
	Signature   string       `json:"signature"`
	Amount      money.Amount `json:"amount"`
	Mode        string       `json:"mode"`
	Intent      string       `json:"intent"`
	Destination string       `json:"destination,omitempty"`
}

// ConfirmResponse reports the applied confirmation.
type ConfirmResponse struct {
	Intent     string       `json:"intent"`
	Bucket     string       `json:"bucket"`
	NewBalance money.Amount `json:"new_balance"`
	EntryID    string       `json:"entry_id"`
	Recipient  string       `json:"recipient,omitempty"`
}
