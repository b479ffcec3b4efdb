package wallet

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/auth"
	"github.com/cryptopay/cryptopay/internal/ledger"
	"github.com/cryptopay/cryptopay/internal/money"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type entryResponse struct {
	ID          string       `json:"id"`
	Bucket      string       `json:"bucket"`
	Amount      money.Amount `json:"amount"`
	Description string       `json:"description"`
	ExternalRef string       `json:"external_ref,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		Bucket:      string(e.Bucket),
		Amount:      e.Amount,
		Description: e.Description,
		ExternalRef: e.ExternalRef,
		CreatedAt:   e.CreatedAt,
	}
}

// Balances returns the caller's three bucket balances.
func (h *Handler) Balances(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	b, err := h.service.Balances(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id":   b.AccountID,
		"sandbox":      b.Sandbox,
		"gateway_test": b.GatewayTest,
		"gateway_live": b.GatewayLive,
		"currency":     money.Currency,
		"timestamp":    b.AsOf,
	})
}

// Ledger returns a page of the caller's entries, newest first.
func (h *Handler) Ledger(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	page := ledger.Page{Limit: c.QueryInt("limit"), Cursor: c.Query("cursor")}
	res, err := h.service.Ledger(c.UserContext(), id, page)
	if err != nil {
		return err
	}
	entries := make([]entryResponse, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, toEntryResponse(e))
	}
	return c.JSON(fiber.Map{
		"entries":     entries,
		"next_cursor": res.NextCursor,
	})
}

// Statement returns the caller's full history.
func (h *Handler) Statement(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	entries := []entryResponse{}
	for e, err := range h.service.History(c.UserContext(), id) {
		if err != nil {
			return err
		}
		entries = append(entries, toEntryResponse(e))
	}
	return c.JSON(fiber.Map{"entries": entries})
}

// Address returns the caller's alias and payment link.
func (h *Handler) Address(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	addr, err := h.service.PaymentAddress(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"alias":        addr.Alias,
		"display_name": addr.DisplayName,
		"uri":          addr.URI,
	})
}
