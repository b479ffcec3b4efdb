package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/money"
)

const defaultTimeout = 10 * time.Second

// Credentials is one gateway key pair.
type Credentials struct {
	KeyID     string
	KeySecret string
}

// HTTPClient talks to a Razorpay-compatible REST API.
type HTTPClient struct {
	baseURL string
	keys    map[Mode]Credentials
	timeout time.Duration
}

// NewHTTPClient creates a client for baseURL. Modes without credentials are
// reported as unavailable on use.
func NewHTTPClient(baseURL string, keys map[Mode]Credentials, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), keys: keys, timeout: timeout}
}

// KeyID returns the public key id used by checkout for mode.
func (c *HTTPClient) KeyID(mode Mode) string {
	return c.keys[mode].KeyID
}

type orderBody struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt"`
	PaymentCapture int               `json:"payment_capture"`
	Notes          map[string]string `json:"notes,omitempty"`
}

type orderReply struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type paymentBody struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
	VPA      string `json:"vpa"`
}

type paymentReply struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorReply struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *HTTPClient) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	body := orderBody{
		Amount:         req.Amount.Minor(),
		Currency:       money.Currency,
		Receipt:        "receipt_" + randomHex(8),
		PaymentCapture: 1,
		Notes:          req.Notes,
	}
	var reply orderReply
	if err := c.post(ctx, req.Mode, "/v1/orders", body, &reply); err != nil {
		return Order{}, err
	}
	return Order{
		Handle:   reply.ID,
		Amount:   money.Amount(reply.Amount),
		Currency: reply.Currency,
		Receipt:  reply.Receipt,
		Status:   reply.Status,
	}, nil
}

func (c *HTTPClient) CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error) {
	body := paymentBody{
		Amount:   req.Amount.Minor(),
		Currency: money.Currency,
		Method:   "upi",
		VPA:      req.Destination,
	}
	var reply paymentReply
	if err := c.post(ctx, req.Mode, "/v1/payments", body, &reply); err != nil {
		return Payment{}, err
	}
	return Payment{Handle: reply.ID, Status: reply.Status}, nil
}

func (c *HTTPClient) post(ctx context.Context, mode Mode, path string, in, out any) error {
	creds, ok := c.keys[mode]
	if !ok || creds.KeyID == "" {
		return apperr.Unavailable(fmt.Sprintf("gateway %s credentials not configured", mode), nil)
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if err := apperr.FromContext(ctx); err != nil {
		return err
	}
	if timeout <= 0 {
		return apperr.Unavailable("gateway timeout", context.DeadlineExceeded)
	}

	agent := fiber.Post(c.baseURL + path)
	agent.BasicAuth(creds.KeyID, creds.KeySecret)
	agent.JSON(in)
	agent.Timeout(timeout)

	status, payload, errs := agent.Bytes()
	if len(errs) > 0 {
		return apperr.Unavailable("gateway request failed", errors.Join(errs...))
	}
	if status < 200 || status > 299 {
		var reply errorReply
		detail := fmt.Sprintf("status %d", status)
		if json.Unmarshal(payload, &reply) == nil && reply.Error.Description != "" {
			detail = reply.Error.Description
		}
		return apperr.Unavailable("gateway rejected request", errors.New(detail))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return apperr.Unavailable("decode gateway response", err)
	}
	return nil
}
