package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fanportal/portal-service/internal/api/dto"
	"github.com/fanportal/portal-service/internal/auth"
	"github.com/fanportal/portal-service/internal/crypto"
	"github.com/fanportal/portal-service/internal/domain"
	"github.com/fanportal/portal-service/internal/service"
	"github.com/fanportal/portal-service/internal/storage"
	apperrors "github.com/fanportal/portal-service/pkg/util"
)

// HeaderLocale selects the language for outbound mail templates.
const HeaderLocale = "x-locale"

// UsersHandler exposes the verification flow and account queries.
type UsersHandler struct {
	accounts     *service.AccountService
	verification *service.VerificationService
	objects      storage.ObjectStore
	cipher       *crypto.Cipher
}

// NewUsersHandler constructs handler.
func NewUsersHandler(accounts *service.AccountService, verification *service.VerificationService, objects storage.ObjectStore, cipher *crypto.Cipher) *UsersHandler {
	return &UsersHandler{accounts: accounts, verification: verification, objects: objects, cipher: cipher}
}

// SendVerification handles POST /user/email/send. Duplicate requests inside
// the validity window report already_sent instead of erroring.
func (h *UsersHandler) SendVerification(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("not authenticated")
	}

	locale := c.Get(HeaderLocale)
	if locale == "" {
		locale = "en"
	}

	status, err := h.verification.RequestEmail(c.UserContext(), user, locale)
	if err != nil {
		return err
	}
	return c.JSON(dto.SendStatusResponse{Status: string(status)})
}

// ConfirmVerification handles GET /user/email/verify/:id. Outcomes map to
// distinct user-visible states rather than errors.
func (h *UsersHandler) ConfirmVerification(c *fiber.Ctx) error {
	token := c.Params("id")
	if token == "" {
		return apperrors.NewValidationError("missing token", nil)
	}

	result, err := h.verification.Confirm(c.UserContext(), token)
	if err != nil {
		return err
	}

	switch result {
	case service.ResultVerified:
		return c.JSON(true)
	case service.ResultExpired:
		return c.JSON(fiber.Map{"status": "expired"})
	default:
		return apperrors.NewNotFound("verification token", nil)
	}
}

// HasUsername handles POST /user/has-username. Responds true when available.
func (h *UsersHandler) HasUsername(c *fiber.Ctx) error {
	var req dto.HasUsernameRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Username == "" {
		return apperrors.NewValidationError("username required", nil)
	}

	available, err := h.accounts.UsernameAvailable(c.UserContext(), req.Username)
	if err != nil {
		return err
	}
	return c.JSON(available)
}

// HasEmail handles POST /user/has-email. Responds true when available.
func (h *UsersHandler) HasEmail(c *fiber.Ctx) error {
	var req dto.HasEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" {
		return apperrors.NewValidationError("email required", nil)
	}

	available, err := h.accounts.EmailAvailable(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(available)
}

// List handles GET /user.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	users, err := h.accounts.List(c.UserContext())
	if err != nil {
		return err
	}
	views := make([]dto.UserView, 0, len(users))
	for _, user := range users {
		views = append(views, dto.NewUserView(user))
	}
	return c.JSON(views)
}

// Get handles GET /user/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return apperrors.NewValidationError("missing id", nil)
	}
	user, err := h.accounts.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserView(user))
}

// Update handles PATCH /user/:id (multipart: optional avatar file plus form
// fields). Principals may edit their own profile; admins may edit anyone.
// A password form value carries the wire transform.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return apperrors.NewValidationError("missing id", nil)
	}

	principal, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("not authenticated")
	}
	if principal.ID != id && principal.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("cannot edit another account")
	}

	password := ""
	if enc := c.FormValue("password"); enc != "" {
		plain, err := h.cipher.Decrypt(enc)
		if err != nil {
			return apperrors.NewCryptoError("malformed encrypted field")
		}
		password = plain
	}

	avatarURL, err := uploadAvatar(c, h.objects)
	if err != nil {
		return err
	}

	user, err := h.accounts.Update(c.UserContext(), id, service.UpdateInput{
		Username:  c.FormValue("username"),
		Nickname:  c.FormValue("nickname"),
		Email:     c.FormValue("email"),
		Password:  password,
		AvatarURL: avatarURL,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserView(user))
}

// Remove handles DELETE /user/:id.
func (h *UsersHandler) Remove(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return apperrors.NewValidationError("missing id", nil)
	}
	if err := h.accounts.Remove(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(true)
}
