package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fanportal/portal-service/internal/api/dto"
	"github.com/fanportal/portal-service/internal/auth"
	"github.com/fanportal/portal-service/internal/crypto"
	"github.com/fanportal/portal-service/internal/service"
	"github.com/fanportal/portal-service/internal/storage"
	apperrors "github.com/fanportal/portal-service/pkg/util"
)

// AuthHandler exposes registration, login and profile endpoints.
type AuthHandler struct {
	accounts *service.AccountService
	objects  storage.ObjectStore
	cipher   *crypto.Cipher
}

// NewAuthHandler constructs handler.
func NewAuthHandler(accounts *service.AccountService, objects storage.ObjectStore, cipher *crypto.Cipher) *AuthHandler {
	return &AuthHandler{accounts: accounts, objects: objects, cipher: cipher}
}

// Login handles POST /auth/login. The password field arrives decrypted: the
// signature middleware has already reversed the wire transform.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Account == "" || req.Password == "" {
		return apperrors.NewValidationError("account and password required", nil)
	}

	user, token, exp, err := h.accounts.Login(c.UserContext(), req.Account, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(dto.AuthResponse{
		AccessToken: token,
		ExpiresAt:   exp,
		User:        dto.NewUserView(user),
	})
}

// Register handles POST /auth/register (multipart: avatar file plus form
// fields). The password form value carries the wire transform and is
// decrypted here; multipart bodies are not rewritten by the middleware.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	username := c.FormValue("username")
	nickname := c.FormValue("nickname")
	email := c.FormValue("email")
	encPassword := c.FormValue("password")

	if username == "" || email == "" || encPassword == "" {
		return apperrors.NewValidationError("username, email, password required", nil)
	}

	password, err := h.cipher.Decrypt(encPassword)
	if err != nil {
		return apperrors.NewCryptoError("malformed encrypted field")
	}

	avatarURL, err := uploadAvatar(c, h.objects)
	if err != nil {
		return err
	}

	user, token, exp, err := h.accounts.Register(c.UserContext(), service.RegisterInput{
		Username:  username,
		Nickname:  nickname,
		Email:     email,
		Password:  password,
		AvatarURL: avatarURL,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(dto.AuthResponse{
		AccessToken: token,
		ExpiresAt:   exp,
		User:        dto.NewUserView(user),
	})
}

// Refresh handles GET /auth/refresh. Re-issues a bearer token for the
// authenticated principal without requiring credentials again.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("not authenticated")
	}

	token, exp, err := h.accounts.Refresh(user)
	if err != nil {
		return err
	}
	return c.JSON(dto.AuthResponse{
		AccessToken: token,
		ExpiresAt:   exp,
		User:        dto.NewUserView(user),
	})
}

// Profile handles GET /auth/profile.
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("not authenticated")
	}
	return c.JSON(dto.NewUserView(user))
}
