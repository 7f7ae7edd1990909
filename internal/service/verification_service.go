package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/fanportal/portal-service/internal/cache"
	"github.com/fanportal/portal-service/internal/crypto"
	"github.com/fanportal/portal-service/internal/domain"
	"github.com/fanportal/portal-service/internal/events"
	"github.com/fanportal/portal-service/internal/mail"
	"github.com/fanportal/portal-service/internal/repository"
)

// SendStatus is the outcome of a verification email request.
type SendStatus string

const (
	StatusSent        SendStatus = "sent"
	StatusAlreadySent SendStatus = "already_sent"
)

// ConfirmResult is the outcome of a confirmation attempt. All three outcomes
// are terminal, user-visible states, not errors.
type ConfirmResult string

const (
	ResultVerified ConfirmResult = "verified"
	ResultExpired  ConfirmResult = "expired"
	ResultInvalid  ConfirmResult = "invalid"
)

// VerificationService drives the email verification state machine: an
// idempotent cache-guarded send and a confirm that flips the persisted flag
// and emits a completion event.
type VerificationService struct {
	users      repository.UserRepository
	guard      cache.Store
	mailer     mail.Mailer
	cipher     *crypto.Cipher
	dispatcher events.Dispatcher
	logger     *zap.Logger
	window     time.Duration
	linkBase   string
}

// VerificationDependencies bundles collaborators for the service.
type VerificationDependencies struct {
	Users      repository.UserRepository
	Guard      cache.Store
	Mailer     mail.Mailer
	Cipher     *crypto.Cipher
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewVerificationService builds the service. window is the verification email
// validity period; linkBase is the public base URL embedded in mail links.
func NewVerificationService(deps VerificationDependencies, window time.Duration, linkBase string) *VerificationService {
	return &VerificationService{
		users:      deps.Users,
		guard:      deps.Guard,
		mailer:     deps.Mailer,
		cipher:     deps.Cipher,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		window:     window,
		linkBase:   linkBase,
	}
}

func guardKey(subjectID string) string {
	return "email_verify:" + subjectID
}

// RequestEmail sends a verification email unless one was already sent within
// the validity window. The guard entry is claimed atomically so concurrent
// requests for the same subject produce exactly one dispatch.
func (s *VerificationService) RequestEmail(ctx context.Context, user *domain.User, locale string) (SendStatus, error) {
	created, err := s.guard.SetIfAbsent(ctx, guardKey(user.ID), "1", s.window)
	if err != nil {
		return "", err
	}
	if !created {
		return StatusAlreadySent, nil
	}

	link := fmt.Sprintf("%s/user/email/verify/%s", s.linkBase, s.cipher.Encrypt(user.ID))
	msg := mail.Message{
		To:         user.Email,
		Subject:    "Verify your email address",
		TemplateID: "email-verify-" + locale,
		Context: map[string]any{
			"username": user.Username,
			"expires":  int(s.window.Minutes()),
			"link":     link,
			"year":     time.Now().Year(),
		},
	}

	messageID, err := s.mailer.Send(ctx, msg)
	if err != nil {
		// release the guard so the user can retry after a dispatch failure
		if delErr := s.guard.Delete(ctx, guardKey(user.ID)); delErr != nil {
			s.logger.Warn("failed to release verification guard", zap.Error(delErr))
		}
		return "", err
	}

	s.logger.Info("verification email sent",
		zap.String("user_id", user.ID),
		zap.String("message_id", messageID),
	)
	return StatusSent, nil
}

// Confirm validates a verification token recovered from a mail link. The
// guard entry is intentionally left to expire naturally, so a duplicate
// confirm inside the window is a harmless re-write of the same flag.
func (s *VerificationService) Confirm(ctx context.Context, token string) (ConfirmResult, error) {
	subjectID, err := s.cipher.Decrypt(token)
	if err != nil {
		return ResultInvalid, nil
	}

	if _, err := s.users.GetByID(ctx, subjectID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ResultInvalid, nil
		}
		return "", err
	}

	_, present, err := s.guard.Get(ctx, guardKey(subjectID))
	if err != nil {
		return "", err
	}
	if !present {
		return ResultExpired, nil
	}

	if err := s.users.UpdateEmailVerified(ctx, subjectID); err != nil {
		return "", err
	}

	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventEmailVerified,
		Timestamp: time.Now(),
		Payload: events.EmailVerifiedPayload{
			EncryptedID: token,
			Verified:    true,
		},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish verification event", zap.Error(err))
	}

	s.logger.Info("email verified", zap.String("user_id", subjectID))
	return ResultVerified, nil
}
