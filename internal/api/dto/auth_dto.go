package dto

import (
	"time"

	"github.com/fanportal/portal-service/internal/domain"
)

// LoginRequest payload. Account is a username or email; password arrives in
// its wire (encrypted) form and is decrypted by the transport layer.
type LoginRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        UserView  `json:"user"`
}

// UserView is the public projection of an account. The password hash is
// never serialized.
type UserView struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Nickname      string    `json:"nickname"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Avatar        string    `json:"avatar"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewUserView projects a domain user.
func NewUserView(user *domain.User) UserView {
	return UserView{
		ID:            user.ID,
		Username:      user.Username,
		Nickname:      user.Nickname,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Avatar:        user.Avatar,
		Role:          string(user.Role),
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}
