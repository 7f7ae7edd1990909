package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testIVHex  = "0f0e0d0c0b0a090807060504"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testKeyHex, testIVHex)
	require.NoError(t, err)
	return c
}

func TestNewCipher_RejectsBadMaterial(t *testing.T) {
	tests := []struct {
		name string
		key  string
		iv   string
	}{
		{"empty key", "", testIVHex},
		{"short key", "abcd", testIVHex},
		{"non-hex key", strings.Repeat("zz", 32), testIVHex},
		{"empty iv", testKeyHex, ""},
		{"short iv", testKeyHex, "0102"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCipher(tt.key, tt.iv)
			assert.Error(t, err)
		})
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	inputs := []string{
		"",
		"a",
		"9f86d081-0000-4000-8000-000000000000",
		"correct horse battery staple",
		strings.Repeat("x", 1024),
	}
	for _, in := range inputs {
		opaque := c.Encrypt(in)
		out, err := c.Decrypt(opaque)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestCipher_Deterministic(t *testing.T) {
	c := newTestCipher(t)

	// channel names are derived independently on both ends, so the same
	// plaintext must always produce the same opaque value
	assert.Equal(t, c.Encrypt("user-42"), c.Encrypt("user-42"))
	assert.NotEqual(t, c.Encrypt("user-42"), c.Encrypt("user-43"))
}

func TestCipher_DecryptCorruptedFails(t *testing.T) {
	c := newTestCipher(t)
	opaque := c.Encrypt("user-42")

	// flip one hex digit
	var corrupted string
	if opaque[0] == 'f' {
		corrupted = "0" + opaque[1:]
	} else {
		corrupted = "f" + opaque[1:]
	}

	for _, bad := range []string{corrupted, "not-hex!", "abcd", "", opaque[:len(opaque)-2]} {
		_, err := c.Decrypt(bad)
		assert.ErrorIs(t, err, ErrCrypto, "input %q", bad)
	}
}

func TestCipher_DifferentKeysCannotDecrypt(t *testing.T) {
	c1 := newTestCipher(t)
	c2, err := NewCipher(
		"ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		testIVHex,
	)
	require.NoError(t, err)

	_, err = c2.Decrypt(c1.Encrypt("user-42"))
	assert.ErrorIs(t, err, ErrCrypto)
}
