package funding

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/auth"
)

// Handler exposes HTTP endpoints for gateway funding flows.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CreateOrder opens a gateway checkout order for the caller.
func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	var req OrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.CreateOrder(c.UserContext(), OrderInput{
		AccountID: id,
		Amount:    req.Amount,
		Mode:      req.Mode,
		Intent:    req.Intent,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(OrderResponse{
		OrderID:  result.Handle,
		Amount:   result.Amount,
		Minor:    result.Amount.Minor(),
		Currency: result.Currency,
		KeyID:    result.KeyID,
		Mode:     string(result.Mode),
		Intent:   string(result.Intent),
	})
}

// Confirm applies a signed checkout confirmation.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	var req ConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Confirm(c.UserContext(), ConfirmInput{
		AccountID:     id,
		OrderHandle:   req.OrderID,
		PaymentHandle: req.PaymentID,
		Signature:     req.Signature,
		Amount:        req.Amount,
		Mode:          req.Mode,
		Intent:        req.Intent,
		Destination:   req.Destination,
	})
	if err != nil {
		return err
	}

	return c.JSON(ConfirmResponse{
		Intent:     string(result.Intent),
		Bucket:     string(result.Bucket),
		NewBalance: result.NewBalance,
		EntryID:    result.EntryID,
		Recipient:  result.Recipient,
	})
}
