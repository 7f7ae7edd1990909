package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Session is the authenticated state held by a client context.
type Session struct {
	SubjectID     string    `json:"subject_id"`
	Token         string    `json:"token"`
	EmailVerified bool      `json:"email_verified"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Credentials is the durable slice of a session: the bearer token and the
// subject identifier it was issued for. The two are always stored and purged
// together.
type Credentials struct {
	SubjectID string `json:"subject_id"`
	Token     string `json:"token"`
}

// CredentialSource abstracts where credentials live between process runs.
// Implementations differ by execution context: cookies for a server-rendered
// request scope, a state file for a long-lived local process.
type CredentialSource interface {
	Load() (Credentials, bool)
	Store(creds Credentials) error
	Purge() error
}

// FileSource persists credentials as a JSON file on disk.
type FileSource struct {
	path string
}

// NewFileSource builds a file-backed source. The parent directory is created
// on first Store.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Load() (Credentials, bool) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Credentials{}, false
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, false
	}
	if creds.Token == "" || creds.SubjectID == "" {
		return Credentials{}, false
	}
	return creds, true
}

// Store writes token and subject id in a single atomic rename so a crash
// never leaves one without the other.
func (f *FileSource) Store(creds Credentials) error {
	if creds.Token == "" || creds.SubjectID == "" {
		return errors.New("client: refusing to store partial credentials")
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileSource) Purge() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

const (
	cookieToken   = "portal_token"
	cookieSubject = "portal_subject"
)

// CookieSource reads credentials from an inbound request's cookies and
// writes them through a response writer. It is scoped to a single
// server-rendered request.
type CookieSource struct {
	req    *http.Request
	writer http.ResponseWriter
	secure bool
}

// NewCookieSource binds a source to one request/response pair.
func NewCookieSource(req *http.Request, w http.ResponseWriter, secure bool) *CookieSource {
	return &CookieSource{req: req, writer: w, secure: secure}
}

// Load returns credentials only when both cookies are present. A lone token
// or subject cookie is treated as no session at all.
func (c *CookieSource) Load() (Credentials, bool) {
	token, err := c.req.Cookie(cookieToken)
	if err != nil || token.Value == "" {
		return Credentials{}, false
	}
	subject, err := c.req.Cookie(cookieSubject)
	if err != nil || subject.Value == "" {
		return Credentials{}, false
	}
	return Credentials{SubjectID: subject.Value, Token: token.Value}, true
}

func (c *CookieSource) Store(creds Credentials) error {
	if creds.Token == "" || creds.SubjectID == "" {
		return errors.New("client: refusing to store partial credentials")
	}
	c.setCookie(cookieToken, creds.Token, 0)
	c.setCookie(cookieSubject, creds.SubjectID, 0)
	return nil
}

func (c *CookieSource) Purge() error {
	c.setCookie(cookieToken, "", -1)
	c.setCookie(cookieSubject, "", -1)
	return nil
}

func (c *CookieSource) setCookie(name, value string, maxAge int) {
	http.SetCookie(c.writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
