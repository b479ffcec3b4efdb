package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/money"
)

// StaticClient simulates a gateway locally. Orders are created and payments
// are captured immediately unless Status overrides the outcome.
type StaticClient struct {
	// Status is reported for every payment; empty means captured.
	Status string

	mu       sync.Mutex
	orders   []OrderRequest
	payments []PaymentRequest
}

func (s *StaticClient) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	s.orders = append(s.orders, req)
	s.mu.Unlock()
	return Order{
		Handle:   "order_" + randomHex(7),
		Amount:   req.Amount,
		Currency: money.Currency,
		Receipt:  "receipt_" + randomHex(8),
		Status:   "created",
	}, nil
}

func (s *StaticClient) CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return Payment{}, err
	}
	s.mu.Lock()
	s.payments = append(s.payments, req)
	s.mu.Unlock()
	status := s.Status
	if status == "" {
		status = StatusCaptured
	}
	return Payment{Handle: "pay_" + randomHex(7), Status: status}, nil
}

// Payments returns the payment requests received so far.
func (s *StaticClient) Payments() []PaymentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PaymentRequest(nil), s.payments...)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// KeyID returns a placeholder checkout key for mode.
func (s *StaticClient) KeyID(mode Mode) string {
	return "rzp_" + string(mode) + "_static"
}
