package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cryptopay/cryptopay/internal/auth"
	"github.com/cryptopay/cryptopay/internal/identity"
)

// RegisterAuthRoutes wires signup and login.
func RegisterAuthRoutes(r fiber.Router, ids *identity.Handler, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/signup", ids.Register)
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
}

// RegisterProfileRoutes wires the caller's profile and merchant profile.
func RegisterProfileRoutes(r fiber.Router, ids *identity.Handler) {
	r.Get("/me", ids.Me)
	r.Patch("/me", ids.UpdateProfile)
	r.Post("/merchants", ids.RegisterMerchant)
	r.Get("/merchants/me", ids.MyMerchant)
}
