package auth

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/ledger"
)

// Authenticator checks login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (ledger.Account, error)
}

// Handler exposes the login endpoint.
type Handler struct {
	ids Authenticator
	svc *Service
}

func NewHandler(ids Authenticator, svc *Service) *Handler {
	return &Handler{ids: ids, svc: svc}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccountID string `json:"account_id"`
	Alias     string `json:"alias"`
	Token
}

// Login validates credentials and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := h.ids.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	token, err := h.svc.Issue(account)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(loginResponse{AccountID: account.ID, Alias: account.Alias, Token: token})
}
