package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/wallet"
)

// RegisterWalletRoutes wires read-only wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet/balances", h.Balances)
	r.Get("/wallet/ledger", h.Ledger)
	r.Get("/wallet/statement", h.Statement)
	r.Get("/wallet/address", h.Address)
}
