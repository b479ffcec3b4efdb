package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/apperr"
)

const accountIDKey = "account_id"

// SetAccountID attaches the verified caller to the request.
func SetAccountID(c *fiber.Ctx, accountID string) {
	c.Locals(accountIDKey, accountID)
}

// AccountID returns the verified caller of the request.
func AccountID(c *fiber.Ctx) (string, error) {
	id, _ := c.Locals(accountIDKey).(string)
	if id == "" {
		return "", apperr.New(apperr.KindUnauthorized, "unauthorized")
	}
	return id, nil
}
