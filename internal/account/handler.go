package account

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/keykeeper/keykeeper/internal/mailcred"
)

// Handler exposes account registration and mailbox credential endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs an account handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

type registerRequest struct {
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=8"`
	PGPFingerprint string `json:"pgp_fingerprint" validate:"omitempty,hexadecimal,len=40"`
}

// Register creates an account.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	acct, err := h.service.Register(c.UserContext(), RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		PGPFingerprint: req.PGPFingerprint,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return fiber.NewError(http.StatusConflict, "email already registered")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"account_id": acct.ID,
		"email":      acct.Email,
		"created_at": acct.CreatedAt,
	})
}

type challengeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Challenge issues a single-use signing challenge for mailbox activation.
func (h *Handler) Challenge(c *fiber.Ctx) error {
	ownerID, err := callerAccountID(c)
	if err != nil {
		return err
	}

	var req challengeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	challenge, err := h.service.IssueChallenge(c.UserContext(), ownerID, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "account not found")
		case errors.Is(err, ErrNotOwner):
			return fiber.NewError(http.StatusForbidden, "mailbox belongs to a different account")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{"challenge": challenge})
}

type mailSecretRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Signature string `json:"signature" validate:"omitempty,base64"`
}

func (r mailSecretRequest) signatureBytes() ([]byte, error) {
	if r.Signature == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(r.Signature)
}

// Activate derives the mailbox password and stores the Dovecot entry.
func (h *Handler) Activate(c *fiber.Ctx) error {
	result, err := h.mailSecret(c, h.service.ActivateMail)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"email":    result.Email,
		"password": result.Password,
		"scheme":   result.Scheme,
	})
}

// Credential re-derives the mailbox password for IMAP/SMTP login.
func (h *Handler) Credential(c *fiber.Ctx) error {
	result, err := h.mailSecret(c, h.service.MailCredential)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"email":    result.Email,
		"password": result.Password,
		"scheme":   result.Scheme,
	})
}

func (h *Handler) mailSecret(c *fiber.Ctx, op func(ctx context.Context, ownerID, email string, signature []byte) (ActivationResult, error)) (ActivationResult, error) {
	ownerID, err := callerAccountID(c)
	if err != nil {
		return ActivationResult{}, err
	}

	var req mailSecretRequest
	if err := c.BodyParser(&req); err != nil {
		return ActivationResult{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return ActivationResult{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	signature, err := req.signatureBytes()
	if err != nil {
		return ActivationResult{}, fiber.NewError(http.StatusBadRequest, "signature must be base64")
	}

	result, err := op(c.UserContext(), ownerID, req.Email, signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return ActivationResult{}, fiber.NewError(http.StatusNotFound, "account not found")
		case errors.Is(err, ErrNotOwner):
			return ActivationResult{}, fiber.NewError(http.StatusForbidden, "mailbox belongs to a different account")
		case errors.Is(err, ErrChallengeExpired):
			return ActivationResult{}, fiber.NewError(http.StatusConflict, "challenge expired or already used")
		case errors.Is(err, mailcred.ErrMissingKeyMaterial):
			return ActivationResult{}, fiber.NewError(http.StatusUnprocessableEntity, "missing key material")
		default:
			return ActivationResult{}, fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return result, nil
}

// callerAccountID reads the account id placed in locals by the JWT middleware.
// Mailbox endpoints derive real credentials, so a missing identity is rejected
// even if a route is ever wired outside the protected group.
func callerAccountID(c *fiber.Ctx) (string, error) {
	ownerID, _ := c.Locals("account_id").(string)
	if ownerID == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	return ownerID, nil
}
