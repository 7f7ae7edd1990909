package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanportal/portal-service/internal/api/dto"
	"github.com/fanportal/portal-service/internal/crypto"
)

type recordingExpiredHandler struct {
	expiredWith []string
	forbidden   int
}

func (r *recordingExpiredHandler) HandleExpired(returnURL string) {
	r.expiredWith = append(r.expiredWith, returnURL)
}

func (r *recordingExpiredHandler) HandleForbidden() { r.forbidden++ }

type managerFixture struct {
	manager    *Manager
	creds      *FileSource
	expired    *recordingExpiredHandler
	cipher     *crypto.Cipher
	rejectAuth bool
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	cipher, err := crypto.NewCipher(testKeyHex, testIVHex)
	require.NoError(t, err)

	fx := &managerFixture{
		creds:   NewFileSource(filepath.Join(t.TempDir(), "creds.json")),
		expired: &recordingExpiredHandler{},
		cipher:  cipher,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req dto.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		password, err := cipher.Decrypt(req.Password)
		if err != nil || req.Account != "alice" || password != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(dto.AuthResponse{
			AccessToken: "tok-1",
			ExpiresAt:   time.Now().Add(time.Hour),
			User:        dto.UserView{ID: "u-1", Username: "alice"},
		})
	})
	mux.HandleFunc("/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		if fx.rejectAuth || r.Header.Get(HeaderToken) != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(dto.UserView{ID: "u-1", Username: "alice", EmailVerified: true})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	fx.manager = NewManager(Config{
		BaseURL: server.URL,
		Cipher:  cipher,
		Signer:  crypto.NewSigner("manager-secret"),
		Creds:   fx.creds,
		Expired: fx.expired,
		Locale:  "en",
		Version: "1.2.0",
	})
	return fx
}

func TestManager_LoginStoresCredentials(t *testing.T) {
	fx := newManagerFixture(t)

	session, err := fx.manager.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "u-1", session.SubjectID)
	assert.Equal(t, "tok-1", session.Token)

	creds, ok := fx.creds.Load()
	require.True(t, ok)
	assert.Equal(t, Credentials{SubjectID: "u-1", Token: "tok-1"}, creds)
}

func TestManager_LoginRejectedCredentials(t *testing.T) {
	fx := newManagerFixture(t)

	_, err := fx.manager.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, ok := fx.creds.Load()
	assert.False(t, ok)
}

func TestManager_CurrentSessionFromStoredCredentials(t *testing.T) {
	fx := newManagerFixture(t)
	require.NoError(t, fx.creds.Store(Credentials{SubjectID: "u-1", Token: "tok-1"}))

	session, err := fx.manager.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "u-1", session.SubjectID)
	assert.True(t, session.EmailVerified)
}

func TestManager_CurrentSessionWithoutCredentials(t *testing.T) {
	fx := newManagerFixture(t)

	session, err := fx.manager.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Empty(t, fx.expired.expiredWith)
}

func TestManager_RejectedTokenPurgesAndNotifies(t *testing.T) {
	fx := newManagerFixture(t)
	require.NoError(t, fx.creds.Store(Credentials{SubjectID: "u-1", Token: "stale"}))

	var logoutCalls int
	fx.manager.OnLogout(func() { logoutCalls++ })

	session, err := fx.manager.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)

	_, ok := fx.creds.Load()
	assert.False(t, ok)
	assert.Equal(t, 1, logoutCalls)
	assert.Len(t, fx.expired.expiredWith, 1)
}

func TestManager_HandleStatus(t *testing.T) {
	fx := newManagerFixture(t)
	require.NoError(t, fx.creds.Store(Credentials{SubjectID: "u-1", Token: "tok-1"}))

	err := fx.manager.HandleStatus(http.StatusUnauthorized, "/orders/42")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, []string{"/orders/42"}, fx.expired.expiredWith)
	_, ok := fx.creds.Load()
	assert.False(t, ok)

	err = fx.manager.HandleStatus(http.StatusForbidden, "/admin")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, fx.expired.forbidden)

	assert.NoError(t, fx.manager.HandleStatus(http.StatusOK, "/"))
}

func TestManager_LogoutRunsCallbacks(t *testing.T) {
	fx := newManagerFixture(t)

	_, err := fx.manager.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)

	var logoutCalls int
	fx.manager.OnLogout(func() { logoutCalls++ })

	require.NoError(t, fx.manager.Logout())
	assert.Equal(t, 1, logoutCalls)

	_, ok := fx.creds.Load()
	assert.False(t, ok)

	// a cached session must not survive the purge
	fx.rejectAuth = true
	session, err := fx.manager.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestManager_RefreshReloadsVerificationState(t *testing.T) {
	fx := newManagerFixture(t)

	session, err := fx.manager.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.False(t, session.EmailVerified)

	refreshed, err := fx.manager.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, refreshed)
	assert.True(t, refreshed.EmailVerified)
}
