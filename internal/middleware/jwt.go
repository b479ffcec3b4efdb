package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/auth"
)

// TokenVerifier checks a bearer token and returns the account it belongs to.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// JWTAuth validates bearer access tokens and attaches the caller's account id.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return apperr.New(apperr.KindUnauthorized, "missing bearer token")
		}
		accountID, err := verifier.Verify(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return err
		}

		auth.SetAccountID(c, accountID)
		return c.Next()
	}
}
