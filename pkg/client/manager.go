package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fanportal/portal-service/internal/api/dto"
	"github.com/fanportal/portal-service/internal/crypto"
)

var (
	// ErrInvalidCredentials is returned by Login when the account/password
	// pair is rejected.
	ErrInvalidCredentials = errors.New("client: invalid credentials")
	// ErrSessionExpired is returned when the server rejects the bearer token.
	ErrSessionExpired = errors.New("client: session expired")
	// ErrForbidden is returned when the token is valid but the operation is
	// not permitted.
	ErrForbidden = errors.New("client: forbidden")
)

// SessionExpiredHandler reacts to terminal auth failures. HandleExpired
// receives the URL the user was on so they can be returned there after
// logging back in.
type SessionExpiredHandler interface {
	HandleExpired(returnURL string)
	HandleForbidden()
}

// Config assembles a Manager.
type Config struct {
	BaseURL string
	Cipher  *crypto.Cipher
	Signer  *crypto.Signer
	Creds   CredentialSource
	Expired SessionExpiredHandler
	Locale  string
	Channel string
	Version string
	// HTTPClient is optional; its transport is wrapped with signing.
	HTTPClient *http.Client
}

// Manager owns the client side of the session lifecycle: login and
// registration, resolving the current session, and the purge path taken on
// logout or token rejection. The token and subject id are always purged
// together.
type Manager struct {
	baseURL string
	http    *http.Client
	cipher  *crypto.Cipher
	creds   CredentialSource
	expired SessionExpiredHandler

	mu       sync.Mutex
	session  *Session
	onLogout []func()
}

// NewManager wires the signing transport around the configured HTTP client.
func NewManager(cfg Config) *Manager {
	inner := cfg.HTTPClient
	if inner == nil {
		inner = &http.Client{Timeout: 15 * time.Second}
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "WEB"
	}

	httpClient := &http.Client{
		Timeout: inner.Timeout,
		Jar:     inner.Jar,
		Transport: &SigningTransport{
			Base:    inner.Transport,
			Signer:  cfg.Signer,
			Cipher:  cfg.Cipher,
			Creds:   cfg.Creds,
			Locale:  cfg.Locale,
			Channel: channel,
			Version: cfg.Version,
		},
	}

	return &Manager{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		cipher:  cfg.Cipher,
		creds:   cfg.Creds,
		expired: cfg.Expired,
	}
}

// OnLogout registers a callback run whenever the session is purged, whether
// by explicit logout or by token rejection.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

// Login authenticates with a username or email plus password. The password
// travels in its encrypted wire form; the signing transport handles that.
func (m *Manager) Login(ctx context.Context, account, password string) (*Session, error) {
	body, err := json.Marshal(dto.LoginRequest{Account: account, Password: password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return m.adoptSession(resp.Body)
	case http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("client: login failed with status %d", resp.StatusCode)
	}
}

// RegisterInput carries the registration form. Avatar is optional.
type RegisterInput struct {
	Username   string
	Nickname   string
	Email      string
	Password   string
	Avatar     io.Reader
	AvatarName string
}

// Register submits the multipart registration form. The password form field
// is encrypted at composition time since multipart bodies bypass the JSON
// field rewrite in the transport.
func (m *Manager) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"username": input.Username,
		"nickname": input.Nickname,
		"email":    input.Email,
		"password": m.cipher.Encrypt(input.Password),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, err
		}
	}
	if input.Avatar != nil {
		part, err := writer.CreateFormFile("avatar", input.AvatarName)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, input.Avatar); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/auth/register", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return m.adoptSession(resp.Body)
	case http.StatusConflict:
		return nil, fmt.Errorf("client: username or email already taken")
	default:
		return nil, fmt.Errorf("client: register failed with status %d", resp.StatusCode)
	}
}

// CurrentSession resolves the active session. A cached session is returned
// as is; otherwise stored credentials are validated against the profile
// endpoint. A rejected token purges and reports nil.
func (m *Manager) CurrentSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	cached := m.session
	m.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	creds, ok := m.creds.Load()
	if !ok {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/auth/profile", nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var view dto.UserView
		if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
			return nil, err
		}
		session := &Session{
			SubjectID:     creds.SubjectID,
			Token:         creds.Token,
			EmailVerified: view.EmailVerified,
		}
		m.mu.Lock()
		m.session = session
		m.mu.Unlock()
		return session, nil
	case http.StatusUnauthorized:
		m.expire("")
		return nil, nil
	default:
		return nil, fmt.Errorf("client: profile fetch failed with status %d", resp.StatusCode)
	}
}

// Refresh drops the cached session and resolves it again. Used by the
// verification watcher, which never trusts the push payload directly.
func (m *Manager) Refresh(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	return m.CurrentSession(ctx)
}

// HandleStatus applies the session lifecycle rules to a response status from
// any API call made outside the Manager. 401 purges the session and invokes
// the expired handler with the originating URL; 403 invokes the forbidden
// handler.
func (m *Manager) HandleStatus(status int, returnURL string) error {
	switch status {
	case http.StatusUnauthorized:
		m.expire(returnURL)
		return ErrSessionExpired
	case http.StatusForbidden:
		if m.expired != nil {
			m.expired.HandleForbidden()
		}
		return ErrForbidden
	}
	return nil
}

// Logout purges the session explicitly.
func (m *Manager) Logout() error {
	err := m.creds.Purge()
	m.clearAndNotify()
	return err
}

func (m *Manager) adoptSession(body io.Reader) (*Session, error) {
	var auth dto.AuthResponse
	if err := json.NewDecoder(body).Decode(&auth); err != nil {
		return nil, err
	}

	creds := Credentials{SubjectID: auth.User.ID, Token: auth.AccessToken}
	if err := m.creds.Store(creds); err != nil {
		return nil, err
	}

	session := &Session{
		SubjectID:     auth.User.ID,
		Token:         auth.AccessToken,
		EmailVerified: auth.User.EmailVerified,
		IssuedAt:      time.Now(),
		ExpiresAt:     auth.ExpiresAt,
	}
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	return session, nil
}

func (m *Manager) expire(returnURL string) {
	_ = m.creds.Purge()
	m.clearAndNotify()
	if m.expired != nil {
		m.expired.HandleExpired(returnURL)
	}
}

func (m *Manager) clearAndNotify() {
	m.mu.Lock()
	m.session = nil
	callbacks := append([]func(){}, m.onLogout...)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
