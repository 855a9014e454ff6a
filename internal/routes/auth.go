package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/keykeeper/keykeeper/internal/auth"
)

// RegisterAuthRoutes wires the public auth endpoints. Logout lives on the
// protected group since it needs a verified caller.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)
}
