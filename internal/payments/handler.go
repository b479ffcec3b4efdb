package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/auth"
	"github.com/cryptopay/cryptopay/internal/ledger"
	"github.com/cryptopay/cryptopay/internal/money"
)

// Handler exposes transfer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	Destination string       `json:"destination"`
	Amount      money.Amount `json:"amount"`
	Mode        string       `json:"mode"`
}

type amountRequest struct {
	Amount money.Amount `json:"amount"`
	Mode   string       `json:"mode"`
}

type transferResponse struct {
	EntryID       string       `json:"entry_id"`
	Recipient     string       `json:"recipient"`
	NewBalance    money.Amount `json:"new_balance"`
	Bucket        string       `json:"bucket"`
	External      bool         `json:"external,omitempty"`
	PaymentHandle string       `json:"payment_handle,omitempty"`
}

func toTransferResponse(res TransferResult, bucket ledger.Bucket) transferResponse {
	return transferResponse{
		EntryID:       res.EntryID,
		Recipient:     res.Recipient,
		NewBalance:    res.NewBalance,
		Bucket:        string(bucket),
		External:      res.External,
		PaymentHandle: res.PaymentHandle,
	}
}

// Transfer sends funds to an alias or a merchant id.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	bucket, err := ledger.BucketForMode(req.Mode)
	if err != nil {
		return err
	}
	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		AccountID:   id,
		Bucket:      bucket,
		Destination: req.Destination,
		Amount:      req.Amount,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toTransferResponse(res, bucket))
}

// PayMerchant pays the merchant named in the path.
func (h *Handler) PayMerchant(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.PayMerchant(c.UserContext(), id, c.Params("merchantID"), req.Mode, req.Amount)
	if err != nil {
		return err
	}
	bucket, _ := ledger.BucketForMode(req.Mode)
	return c.Status(http.StatusCreated).JSON(toTransferResponse(res, bucket))
}

// AddFunds tops up the caller's sandbox bucket.
func (h *Handler) AddFunds(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	mode := req.Mode
	if mode == "" {
		mode = string(ledger.Sandbox)
	}
	bucket, err := ledger.BucketForMode(mode)
	if err != nil {
		return err
	}
	balance, err := h.service.AddFunds(c.UserContext(), id, bucket, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"bucket":      bucket,
		"new_balance": balance,
	})
}
