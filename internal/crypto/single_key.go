package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/quantopian/pgcontents/internal/domain"
)

const (
	// KeyLen is the AES-256 key length in bytes.
	KeyLen = 32

	// NonceLen is the AES-GCM nonce length in bytes.
	NonceLen = 12

	// GCMTagLen is the GCM authentication tag length in bytes.
	GCMTagLen = 16

	// MinCiphertextLen is the minimum valid ciphertext length (nonce + tag).
	MinCiphertextLen = NonceLen + GCMTagLen

	// DeriveKeyIterations is the PBKDF2 iteration count used by DeriveKey.
	// Changing it invalidates every key previously derived from a password.
	DeriveKeyIterations = 100000
)

// SingleKey encrypts with AES-256-GCM under one symmetric key. Ciphertext
// layout is nonce(12B) || sealed data || tag(16B).
type SingleKey struct {
	aead cipher.AEAD
}

var _ Crypto = (*SingleKey)(nil)

// NewSingleKey creates a SingleKey strategy from a 32-byte key.
func NewSingleKey(key []byte) (*SingleKey, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeyLen, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &SingleKey{aead: aead}, nil
}

// DeriveKey derives a per-user encryption key from a master password.
// PBKDF2-HMAC-SHA256 with the user id as salt, so two users sharing a
// master password still get distinct keys.
func DeriveKey(password, userID string) []byte {
	return pbkdf2.Key([]byte(password), []byte(userID), DeriveKeyIterations, KeyLen, sha256.New)
}

func (c *SingleKey) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *SingleKey) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < MinCiphertextLen {
		return nil, fmt.Errorf("ciphertext shorter than %d bytes: %w", MinCiphertextLen, domain.ErrCorruptedFile)
	}

	nonce, sealed := ciphertext[:NonceLen], ciphertext[NonceLen:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptedFile, err)
	}
	return plaintext, nil
}
