package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/auth"
	"github.com/cryptopay/cryptopay/internal/identity"
	"github.com/cryptopay/cryptopay/internal/wallet"
)

// RegisterWalletMeRoute exposes a summary of the caller's profile, balances
// and payment address in one response.
func RegisterWalletMeRoute(r fiber.Router, ids *identity.Service, wallets *wallet.Service) {
	r.Get("/wallet", func(c *fiber.Ctx) error {
		id, err := auth.AccountID(c)
		if err != nil {
			return err
		}
		ctx := c.UserContext()
		account, err := ids.Account(ctx, id)
		if err != nil {
			return err
		}
		bal, err := wallets.Balances(ctx, id)
		if err != nil {
			return err
		}
		addr, err := wallets.PaymentAddress(ctx, id)
		if err != nil {
			return err
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"account": fiber.Map{
				"id":           account.ID,
				"email":        account.Email,
				"alias":        account.Alias,
				"display_name": account.DisplayName,
				"created_at":   account.CreatedAt,
			},
			"balances": fiber.Map{
				"sandbox":      bal.Sandbox,
				"gateway_test": bal.GatewayTest,
				"gateway_live": bal.GatewayLive,
				"as_of":        bal.AsOf,
			},
			"payment_uri": addr.URI,
		})
	})
}
