package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanportal/portal-service/internal/cache"
	"github.com/fanportal/portal-service/internal/crypto"
	apperrors "github.com/fanportal/portal-service/pkg/util"
)

const (
	testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testIVHex  = "0f0e0d0c0b0a090807060504"
)

type signatureFixture struct {
	app    *fiber.App
	signer *crypto.Signer
	cipher *crypto.Cipher
	// lastBody captures what the downstream handler received
	lastBody []byte
}

func newSignatureFixture(t *testing.T) *signatureFixture {
	t.Helper()

	cipher, err := crypto.NewCipher(testKeyHex, testIVHex)
	require.NoError(t, err)
	signer := crypto.NewSigner("test-sign-secret")
	verifier := NewSignatureVerifier(signer, cipher, cache.NewMemoryStore(), 5*time.Minute)

	fx := &signatureFixture{signer: signer, cipher: cipher}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"code": de.Code})
		}
		return nil
	})
	app.Use(verifier.Handle)
	app.Post("/echo", func(c *fiber.Ctx) error {
		fx.lastBody = append([]byte(nil), c.Body()...)
		return c.SendString("ok")
	})
	app.Get("/read", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	fx.app = app
	return fx
}

func (fx *signatureFixture) signedRequest(t *testing.T, body map[string]any, mutate func(q url.Values, headers http.Header)) *http.Request {
	t.Helper()

	q := url.Values{}
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	q.Set("nonce", fmt.Sprintf("nonce-%d", time.Now().UnixNano()))

	headers := http.Header{}
	if mutate != nil {
		mutate(q, headers)
	}

	params := map[string]string{}
	for k := range q {
		params[k] = q.Get(k)
	}
	if headers.Get(HeaderSign) == "" {
		headers.Set(HeaderSign, fx.signer.Sign(params))
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
		headers.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	req := httptest.NewRequest(http.MethodPost, "/echo?"+q.Encode(), reader)
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	return req
}

func TestSignature_ValidRequestPasses(t *testing.T) {
	fx := newSignatureFixture(t)

	resp, err := fx.app.Test(fx.signedRequest(t, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignature_GetBypassesVerification(t *testing.T) {
	fx := newSignatureFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignature_MissingSignatureRejected(t *testing.T) {
	fx := newSignatureFixture(t)

	req := fx.signedRequest(t, nil, nil)
	req.Header.Del(HeaderSign)
	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignature_TamperedParamRejected(t *testing.T) {
	fx := newSignatureFixture(t)

	req := fx.signedRequest(t, nil, nil)
	// mutate a signed parameter after signing
	u, _ := url.Parse(req.URL.String())
	q := u.Query()
	q.Set("nonce", "tampered")
	u.RawQuery = q.Encode()
	req.URL = u
	req.RequestURI = u.RequestURI()

	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignature_StaleTimestampRejected(t *testing.T) {
	fx := newSignatureFixture(t)

	req := fx.signedRequest(t, nil, func(q url.Values, _ http.Header) {
		q.Set("timestamp", strconv.FormatInt(time.Now().Add(-time.Hour).UnixMilli(), 10))
	})
	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignature_ReplayedNonceRejected(t *testing.T) {
	fx := newSignatureFixture(t)

	nonce := "fixed-nonce-1"
	build := func() *http.Request {
		return fx.signedRequest(t, nil, func(q url.Values, _ http.Header) {
			q.Set("nonce", nonce)
		})
	}

	resp, err := fx.app.Test(build())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = fx.app.Test(build())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignature_DecryptsPasswordField(t *testing.T) {
	fx := newSignatureFixture(t)

	resp, err := fx.app.Test(fx.signedRequest(t, map[string]any{
		"account":  "kimmy",
		"password": fx.cipher.Encrypt("s3cret"),
	}, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var received map[string]any
	require.NoError(t, json.Unmarshal(fx.lastBody, &received))
	assert.Equal(t, "s3cret", received["password"])
	assert.Equal(t, "kimmy", received["account"])
}

func TestSignature_MalformedCiphertextRejected(t *testing.T) {
	fx := newSignatureFixture(t)

	resp, err := fx.app.Test(fx.signedRequest(t, map[string]any{
		"account":  "kimmy",
		"password": "not-valid-ciphertext",
	}, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
