package http

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fanportal/portal-service/internal/cache"
	"github.com/fanportal/portal-service/internal/crypto"
	apperrors "github.com/fanportal/portal-service/pkg/util"
)

// HeaderSign carries the request signature.
const HeaderSign = "x-sign"

// sensitiveFields are the body fields encrypted in transit on mutating
// requests with a JSON body.
var sensitiveFields = []string{"password"}

// SignatureVerifier is the server half of the signed request pipeline. Every
// mutating request must carry a verifiable signature over its query
// parameters (including a freshness timestamp and a unique nonce) and have
// its sensitive body fields decrypted before any business logic runs.
// Failures reject the request outright: no retry, no partial processing.
type SignatureVerifier struct {
	signer *crypto.Signer
	cipher *crypto.Cipher
	nonces cache.Store
	skew   time.Duration
}

// NewSignatureVerifier builds the middleware. skew bounds the acceptable
// clock drift; nonces are remembered for twice that window to block replays.
func NewSignatureVerifier(signer *crypto.Signer, cipher *crypto.Cipher, nonces cache.Store, skew time.Duration) *SignatureVerifier {
	return &SignatureVerifier{signer: signer, cipher: cipher, nonces: nonces, skew: skew}
}

func isMutating(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	}
	return false
}

// Handle verifies signature, freshness and nonce uniqueness, then decrypts
// designated body fields in place.
func (v *SignatureVerifier) Handle(c *fiber.Ctx) error {
	if !isMutating(c.Method()) {
		return c.Next()
	}

	params := c.Queries()

	signature := c.Get(HeaderSign)
	if signature == "" {
		return apperrors.NewIntegrityError("missing signature")
	}
	if !v.signer.Verify(params, signature) {
		return apperrors.NewIntegrityError("signature mismatch")
	}

	tsRaw, ok := params["timestamp"]
	if !ok {
		return apperrors.NewIntegrityError("missing timestamp")
	}
	tsMillis, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return apperrors.NewIntegrityError("malformed timestamp")
	}
	drift := time.Since(time.UnixMilli(tsMillis))
	if drift < 0 {
		drift = -drift
	}
	if drift > v.skew {
		return apperrors.NewStaleRequestError("request timestamp outside acceptable window")
	}

	nonce, ok := params["nonce"]
	if !ok || nonce == "" {
		return apperrors.NewIntegrityError("missing nonce")
	}
	fresh, err := v.nonces.SetIfAbsent(c.UserContext(), "nonce:"+nonce, "1", 2*v.skew)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !fresh {
		return apperrors.NewIntegrityError("nonce already used")
	}

	if err := v.decryptBody(c); err != nil {
		return err
	}
	return c.Next()
}

// decryptBody reverses the wire transform on designated fields of a JSON
// body. Multipart form values are decrypted by the handlers that read them.
func (v *SignatureVerifier) decryptBody(c *fiber.Ctx) error {
	if !strings.Contains(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		return nil
	}
	body := c.Body()
	if len(body) == 0 {
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		// not an object body; nothing to decrypt
		return nil
	}

	changed := false
	for _, name := range sensitiveFields {
		raw, ok := fields[name].(string)
		if !ok || raw == "" {
			continue
		}
		plain, err := v.cipher.Decrypt(raw)
		if err != nil {
			return apperrors.NewCryptoError("malformed encrypted field " + name)
		}
		fields[name] = plain
		changed = true
	}
	if !changed {
		return nil
	}

	rewritten, err := json.Marshal(fields)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	c.Request().SetBody(rewritten)
	return nil
}
