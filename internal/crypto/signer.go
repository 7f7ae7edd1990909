package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Signer computes the deterministic keyed digest carried in the x-sign
// header. Client and server must canonicalize identically: keys sorted
// lexicographically, each pair rendered as key=value and joined by "&".
type Signer struct {
	secret []byte
}

// NewSigner builds a Signer around a shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Canonicalize renders the parameter set in the single unambiguous form both
// ends sign over.
func Canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// Sign returns the hex-encoded HMAC-SHA256 over the canonicalized params.
func (s *Signer) Sign(params map[string]string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(Canonicalize(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the parameter set. Comparison is
// constant time.
func (s *Signer) Verify(params map[string]string, signature string) bool {
	expected := s.Sign(params)
	return hmac.Equal([]byte(expected), []byte(signature))
}
