package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fanportal/portal-service/internal/auth"
	"github.com/fanportal/portal-service/internal/config"
	"github.com/fanportal/portal-service/internal/crypto"
	"github.com/fanportal/portal-service/internal/domain"
	"github.com/fanportal/portal-service/internal/repository"
	apperrors "github.com/fanportal/portal-service/pkg/util"
)

// RegisterInput carries validated registration data. Password is plaintext:
// the wire transform has already been reversed by the transport layer.
type RegisterInput struct {
	Username  string
	Nickname  string
	Email     string
	Password  string
	AvatarURL string
}

// AccountService coordinates registration, login and account queries.
type AccountService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewAccountService builds the service.
func NewAccountService(cfg config.AuthConfig, users repository.UserRepository) *AccountService {
	return &AccountService{
		users:      users,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
	}
}

// Register creates a new account and issues its first bearer token.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*domain.User, string, time.Time, error) {
	if taken, err := s.users.ExistsUsername(ctx, input.Username); err != nil {
		return nil, "", time.Time{}, err
	} else if taken {
		return nil, "", time.Time{}, apperrors.NewConflict("username already registered", nil)
	}
	if taken, err := s.users.ExistsEmail(ctx, input.Email); err != nil {
		return nil, "", time.Time{}, err
	} else if taken {
		return nil, "", time.Time{}, apperrors.NewConflict("email already registered", nil)
	}

	hash, err := crypto.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	user := &domain.User{
		Username:     input.Username,
		Nickname:     input.Nickname,
		Email:        input.Email,
		PasswordHash: hash,
		Avatar:       input.AvatarURL,
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", time.Time{}, err
	}

	token, exp, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// Login authenticates by username or email.
func (s *AccountService) Login(ctx context.Context, account, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}

	token, exp, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// UpdateInput carries the mutable profile fields. Empty fields keep their
// current value; Password is plaintext when set.
type UpdateInput struct {
	Username  string
	Nickname  string
	Email     string
	Password  string
	AvatarURL string
}

// Update applies a partial profile edit and returns the stored account.
func (s *AccountService) Update(ctx context.Context, id string, input UpdateInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return nil, err
	}

	if input.Username != "" && input.Username != user.Username {
		if taken, err := s.users.ExistsUsername(ctx, input.Username); err != nil {
			return nil, err
		} else if taken {
			return nil, apperrors.NewConflict("username already registered", nil)
		}
		user.Username = input.Username
	}
	if input.Email != "" && input.Email != user.Email {
		if taken, err := s.users.ExistsEmail(ctx, input.Email); err != nil {
			return nil, err
		} else if taken {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		user.Email = input.Email
	}
	if input.Nickname != "" {
		user.Nickname = input.Nickname
	}
	if input.Password != "" {
		hash, err := crypto.HashPassword(input.Password, s.bcryptCost)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if input.AvatarURL != "" {
		user.Avatar = input.AvatarURL
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return nil, err
	}
	return user, nil
}

// Refresh re-issues a bearer token for an already authenticated principal.
func (s *AccountService) Refresh(user *domain.User) (string, time.Time, error) {
	return s.tokenMgr.GenerateToken(user)
}

// UsernameAvailable reports whether the username is free to register.
func (s *AccountService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	taken, err := s.users.ExistsUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// EmailAvailable reports whether the email is free to register.
func (s *AccountService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	taken, err := s.users.ExistsEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Get returns one account by id.
func (s *AccountService) Get(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return nil, err
	}
	return user, nil
}

// List returns all live accounts.
func (s *AccountService) List(ctx context.Context) ([]*domain.User, error) {
	return s.users.List(ctx)
}

// Remove soft-deletes an account.
func (s *AccountService) Remove(ctx context.Context, id string) error {
	if err := s.users.MarkDeleted(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return err
	}
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AccountService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
