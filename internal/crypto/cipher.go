package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrCrypto is returned whenever ciphertext cannot be decrypted. Callers must
// treat it as "invalid or forged token", never as a retryable failure.
var ErrCrypto = errors.New("crypto: malformed ciphertext")

const ivSize = 12

// Cipher is the process-wide reversible transform for short opaque values:
// password transport and the unguessable tokens embedded in verification
// links and realtime channel names.
//
// Encryption is deliberately deterministic (fixed IV from configuration) so
// that client and server independently derive the same token for the same
// subject identifier. AES-GCM authentication guarantees corrupted input fails
// on decrypt instead of yielding plausible garbage.
type Cipher struct {
	aead cipher.AEAD
	iv   []byte
}

// NewCipher builds a Cipher from hex-encoded key and IV. The key must decode
// to 32 bytes and the IV to 12 bytes.
func NewCipher(keyHex, ivHex string) (*Cipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("crypto: key must be 32 bytes, got %d", len(key))
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid iv: %w", err)
	}
	if len(iv) != ivSize {
		return nil, fmt.Errorf("crypto: iv must be %d bytes, got %d", ivSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Cipher{aead: aead, iv: iv}, nil
}

// Encrypt transforms plaintext into a hex-encoded opaque value.
func (c *Cipher) Encrypt(plaintext string) string {
	sealed := c.aead.Seal(nil, c.iv, []byte(plaintext), nil)
	return hex.EncodeToString(sealed)
}

// Decrypt reverses Encrypt. Any malformed, truncated or tampered input
// returns ErrCrypto.
func (c *Cipher) Decrypt(opaque string) (string, error) {
	sealed, err := hex.DecodeString(opaque)
	if err != nil {
		return "", ErrCrypto
	}
	plaintext, err := c.aead.Open(nil, c.iv, sealed, nil)
	if err != nil {
		return "", ErrCrypto
	}
	return string(plaintext), nil
}
