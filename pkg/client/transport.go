package client

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fanportal/portal-service/internal/crypto"
)

// Header names shared with the server transport.
const (
	HeaderSign    = "x-sign"
	HeaderToken   = "x-token"
	HeaderLocale  = "x-locale"
	HeaderChannel = "x-channel"
	HeaderVersion = "x-version"
)

// wireFields are the JSON body fields encrypted before leaving the client.
var wireFields = []string{"password"}

// SigningTransport is an http.RoundTripper that stamps, signs and selectively
// encrypts outbound requests. Mutating requests get a millisecond timestamp
// and a fresh nonce appended to the query, sensitive body fields rewritten to
// their encrypted form, and the x-sign header computed over the full query
// parameter set. Identity headers are attached to every request.
type SigningTransport struct {
	Base    http.RoundTripper
	Signer  *crypto.Signer
	Cipher  *crypto.Cipher
	Creds   CredentialSource
	Locale  string
	Channel string
	Version string
}

func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	out.Header.Set(HeaderLocale, t.Locale)
	out.Header.Set(HeaderChannel, t.Channel)
	out.Header.Set(HeaderVersion, t.Version)
	if t.Creds != nil {
		if creds, ok := t.Creds.Load(); ok {
			out.Header.Set(HeaderToken, "Bearer "+creds.Token)
		}
	}

	if isMutating(out.Method) {
		if err := t.stampAndSign(out); err != nil {
			return nil, err
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}

func (t *SigningTransport) stampAndSign(req *http.Request) error {
	q := req.URL.Query()
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	q.Set("nonce", uuid.NewString())
	req.URL.RawQuery = q.Encode()

	if err := t.encryptBody(req); err != nil {
		return err
	}

	params := make(map[string]string, len(q))
	for key := range q {
		params[key] = q.Get(key)
	}
	req.Header.Set(HeaderSign, t.Signer.Sign(params))
	return nil
}

// encryptBody rewrites sensitive fields of a JSON object body in place.
// Non-JSON bodies pass through untouched; multipart payloads encrypt their
// fields at composition time instead.
func (t *SigningTransport) encryptBody(req *http.Request) error {
	if req.Body == nil {
		return nil
	}
	// match media type only, the header may carry a charset parameter
	mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return err
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		// Not an object body; send it unchanged.
		req.Body = io.NopCloser(bytes.NewReader(data))
		return nil
	}

	changed := false
	for _, field := range wireFields {
		if raw, ok := payload[field].(string); ok && raw != "" {
			payload[field] = t.Cipher.Encrypt(raw)
			changed = true
		}
	}
	if changed {
		if data, err = json.Marshal(payload); err != nil {
			return err
		}
	}

	req.Body = io.NopCloser(bytes.NewReader(data))
	req.ContentLength = int64(len(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
