package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/payments"
)

// RegisterPaymentRoutes wires balance-moving endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/wallet/add-funds", h.AddFunds)
	r.Post("/transfers", h.Transfer)
	r.Post("/merchants/:merchantID/pay", h.PayMerchant)
}
