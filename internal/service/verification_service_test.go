package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fanportal/portal-service/internal/cache"
	"github.com/fanportal/portal-service/internal/crypto"
	"github.com/fanportal/portal-service/internal/domain"
	"github.com/fanportal/portal-service/internal/events"
)

const (
	testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testIVHex  = "0f0e0d0c0b0a090807060504"
)

type verificationFixture struct {
	svc        *VerificationService
	repo       *fakeUserRepo
	guard      *cache.MemoryStore
	mailer     *recordingMailer
	cipher     *crypto.Cipher
	dispatcher events.Dispatcher
	user       *domain.User
}

func newVerificationFixture(t *testing.T, window time.Duration) *verificationFixture {
	t.Helper()

	cipher, err := crypto.NewCipher(testKeyHex, testIVHex)
	require.NoError(t, err)

	user := &domain.User{ID: "user-1", Username: "kimmy", Email: "kimmy@example.com"}
	repo := newFakeUserRepo(user)
	guard := cache.NewMemoryStore()
	mailer := &recordingMailer{}
	dispatcher := events.NewInMemoryDispatcher()

	svc := NewVerificationService(VerificationDependencies{
		Users:      repo,
		Guard:      guard,
		Mailer:     mailer,
		Cipher:     cipher,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	}, window, "http://localhost:8080")

	return &verificationFixture{
		svc:        svc,
		repo:       repo,
		guard:      guard,
		mailer:     mailer,
		cipher:     cipher,
		dispatcher: dispatcher,
		user:       user,
	}
}

func TestRequestEmail_SentThenAlreadySent(t *testing.T) {
	ctx := context.Background()
	fx := newVerificationFixture(t, 10*time.Minute)

	status, err := fx.svc.RequestEmail(ctx, fx.user, "en")
	require.NoError(t, err)
	assert.Equal(t, StatusSent, status)

	status, err = fx.svc.RequestEmail(ctx, fx.user, "en")
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadySent, status)

	// exactly one email was dispatched across both calls
	assert.Equal(t, 1, fx.mailer.count())
}

func TestRequestEmail_GuardReleasedOnDispatchFailure(t *testing.T) {
	ctx := context.Background()
	fx := newVerificationFixture(t, 10*time.Minute)
	fx.mailer.err = errors.New("smtp down")

	_, err := fx.svc.RequestEmail(ctx, fx.user, "en")
	require.Error(t, err)

	// retry after dispatch failure must be able to send again
	fx.mailer.err = nil
	status, err := fx.svc.RequestEmail(ctx, fx.user, "en")
	require.NoError(t, err)
	assert.Equal(t, StatusSent, status)
}

func TestConfirm_Verified(t *testing.T) {
	ctx := context.Background()
	fx := newVerificationFixture(t, 10*time.Minute)

	var gotPayload events.EmailVerifiedPayload
	fx.dispatcher.Subscribe(events.EventEmailVerified, func(_ context.Context, e events.Event) error {
		gotPayload = e.Payload.(events.EmailVerifiedPayload)
		return nil
	})

	_, err := fx.svc.RequestEmail(ctx, fx.user, "en")
	require.NoError(t, err)

	token := fx.cipher.Encrypt(fx.user.ID)
	result, err := fx.svc.Confirm(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, ResultVerified, result)
	assert.True(t, fx.user.EmailVerified)

	// completion event is addressed by the encrypted identifier only
	assert.Equal(t, token, gotPayload.EncryptedID)
	assert.True(t, gotPayload.Verified)
}

func TestConfirm_DuplicateWithinWindowIsNoOp(t *testing.T) {
	ctx := context.Background()
	fx := newVerificationFixture(t, 10*time.Minute)

	_, err := fx.svc.RequestEmail(ctx, fx.user, "en")
	require.NoError(t, err)

	token := fx.cipher.Encrypt(fx.user.ID)
	for i := 0; i < 2; i++ {
		result, err := fx.svc.Confirm(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, ResultVerified, result)
	}
	assert.True(t, fx.user.EmailVerified)
}

func TestConfirm_Expired(t *testing.T) {
	ctx := context.Background()
	fx := newVerificationFixture(t, 10*time.Minute)

	// no RequestEmail: guard entry absent, as after TTL expiry
	result, err := fx.svc.Confirm(ctx, fx.cipher.Encrypt(fx.user.ID))
	require.NoError(t, err)
	assert.Equal(t, ResultExpired, result)
	assert.False(t, fx.user.EmailVerified)
}

func TestConfirm_Invalid(t *testing.T) {
	ctx := context.Background()
	fx := newVerificationFixture(t, 10*time.Minute)

	for _, token := range []string{"garbage", "", "abcdef012345"} {
		result, err := fx.svc.Confirm(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, ResultInvalid, result, "token %q", token)
	}

	// decryptable token naming an unknown subject is also invalid
	result, err := fx.svc.Confirm(ctx, fx.cipher.Encrypt("no-such-user"))
	require.NoError(t, err)
	assert.Equal(t, ResultInvalid, result)
}
