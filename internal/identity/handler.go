package identity

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/auth"
	"github.com/cryptopay/cryptopay/internal/ledger"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Phone       string `json:"phone"`
	DisplayName string `json:"display_name"`
}

type accountResponse struct {
	AccountID   string    `json:"account_id"`
	Email       string    `json:"email"`
	Alias       string    `json:"alias"`
	DisplayName string    `json:"display_name"`
	Phone       string    `json:"phone"`
	CreatedAt   time.Time `json:"created_at"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		AccountID:   a.ID,
		Email:       a.Email,
		Alias:       a.Alias,
		DisplayName: a.DisplayName,
		Phone:       a.Phone,
		CreatedAt:   a.CreatedAt,
	}
}

type merchantResponse struct {
	MerchantID    string    `json:"merchant_id"`
	AccountID     string    `json:"account_id"`
	BusinessName  string    `json:"business_name"`
	PaymentTarget string    `json:"payment_target"`
	CreatedAt     time.Time `json:"created_at"`
}

func toMerchantResponse(m ledger.Merchant) merchantResponse {
	return merchantResponse{
		MerchantID:    m.ID,
		AccountID:     m.AccountID,
		BusinessName:  m.BusinessName,
		PaymentTarget: m.PaymentTarget,
		CreatedAt:     m.CreatedAt,
	}
}

// Register handles account signup.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := h.service.Register(c.UserContext(), Registration{
		Email:       req.Email,
		Password:    req.Password,
		Phone:       req.Phone,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toAccountResponse(account))
}

// Me returns the caller's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	account, err := h.service.Account(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toAccountResponse(account))
}

// UpdateProfile changes the caller's display name.
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := h.service.UpdateDisplayName(c.UserContext(), id, req.DisplayName)
	if err != nil {
		return err
	}
	return c.JSON(toAccountResponse(account))
}

// RegisterMerchant attaches a merchant profile to the caller's account.
func (h *Handler) RegisterMerchant(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	var req struct {
		BusinessName string `json:"business_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	merchant, err := h.service.RegisterMerchant(c.UserContext(), id, req.BusinessName)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toMerchantResponse(merchant))
}

// MyMerchant returns the caller's merchant profile.
func (h *Handler) MyMerchant(c *fiber.Ctx) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	merchant, err := h.service.Merchant(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toMerchantResponse(merchant))
}
