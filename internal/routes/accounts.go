package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/keykeeper/keykeeper/internal/account"
)

// RegisterAccountRoutes wires the public signup endpoint.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler) {
	r.Post("/accounts", h.Register)
}

// RegisterMailRoutes wires the mailbox credential endpoints. They derive and
// return real mailbox passwords, so they only ever mount on an authenticated
// group.
func RegisterMailRoutes(r fiber.Router, h *account.Handler, challengeLimiter fiber.Handler) {
	r.Post("/mail/challenge", challengeLimiter, h.Challenge)
	r.Post("/mail/activate", h.Activate)
	r.Post("/mail/credentials", h.Credential)
}
