package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/keykeeper/keykeeper/internal/payment"
)

// RegisterPaymentRoutes wires payment and credit endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payment.Handler) {
	r.Post("/payments", h.Initiate)
	r.Get("/payments/:token", h.Status)
	r.Post("/payments/:token/claim", h.Claim)
	r.Get("/credits/balance", h.CreditBalance)
}
