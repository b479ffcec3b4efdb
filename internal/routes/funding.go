package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/funding"
)

// RegisterFundingRoutes wires gateway checkout and confirmation.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/gateway/orders", h.CreateOrder)
	r.Post("/gateway/confirm", h.Confirm)
}
