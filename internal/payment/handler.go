package payment

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/keykeeper/keykeeper/internal/chain"
)

// Handler exposes payment endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

type initiateRequest struct {
	Blockchain string  `json:"blockchain" validate:"required"`
	AmountUSD  float64 `json:"amount_usd" validate:"required,gt=0"`
}

// Initiate starts a credit purchase on the requested chain.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	var req initiateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	kind, err := chain.ParseKind(req.Blockchain)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	accountID, _ := c.Locals("account_id").(string)
	p, err := h.service.Initiate(c.UserContext(), InitiateInput{
		AccountID: accountID,
		Chain:     kind,
		AmountUSD: req.AmountUSD,
	})
	if err != nil {
		if errors.Is(err, chain.ErrUnsupportedChain) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"token":                  p.Token,
		"blockchain":             p.Chain,
		"symbol":                 p.Symbol,
		"payment_address":        p.Address,
		"required_amount":        p.RequiredAmount.String(),
		"required_confirmations": p.RequiredConfirmations,
		"credits":                p.Credits,
		"status":                 p.Status,
		"created_at":             p.CreatedAt,
	})
}

// Status polls the chain for the payment and reports record plus live status.
func (h *Handler) Status(c *fiber.Ctx) error {
	token := c.Params("token")

	p, status, err := h.service.Check(c.UserContext(), token)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "payment not found")
		case errors.Is(err, chain.ErrPaymentLookup):
			// No retries here; the client re-polls.
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token":                  p.Token,
		"status":                 p.Status,
		"total_received":         status.TotalReceived.String(),
		"required_amount":        p.RequiredAmount.String(),
		"confirmations":          status.Confirmations,
		"required_confirmations": p.RequiredConfirmations,
		"is_paid":                status.IsPaid,
		"is_confirmed":           status.IsConfirmed,
	})
}

// Claim issues the payment's credits, once.
func (h *Handler) Claim(c *fiber.Ctx) error {
	token := c.Params("token")

	res, err := h.service.Claim(c.UserContext(), token)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "payment not found")
		case errors.Is(err, ErrAlreadyClaimed):
			return fiber.NewError(http.StatusConflict, "payment already claimed")
		case errors.Is(err, ErrNotConfirmed):
			return fiber.NewError(http.StatusConflict, "payment not confirmed")
		case errors.Is(err, chain.ErrPaymentLookup):
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token":   res.Token,
		"credits": res.Credits,
		"balance": res.Balance,
	})
}

// CreditBalance reports the caller's credit balance.
func (h *Handler) CreditBalance(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)
	if accountID == "" {
		return fiber.NewError(http.StatusUnauthorized, "not authenticated")
	}

	balance, err := h.service.Balance(c.UserContext(), accountID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"account_id": accountID, "balance": balance})
}
