package crypto

import (
	"errors"
	"fmt"

	"github.com/quantopian/pgcontents/internal/domain"
)

// Fallback encrypts with the first strategy in its list and decrypts by
// trying each in order. Listing the current key first and retired keys after
// it gives zero-downtime key rotation, and makes re-encryption runs
// idempotent: rows already re-encrypted decrypt with the first entry, rows
// not yet touched fall through to the old one.
type Fallback struct {
	cryptos []Crypto
}

var _ Crypto = (*Fallback)(nil)

// NewFallback creates a Fallback over the given strategies. A NoEncryption
// anywhere but last would shadow every entry after it (its Decrypt always
// succeeds), so that ordering is rejected.
func NewFallback(cryptos ...Crypto) (*Fallback, error) {
	if len(cryptos) == 0 {
		return nil, errors.New("at least one crypto is required")
	}
	for _, c := range cryptos[:len(cryptos)-1] {
		if _, ok := c.(NoEncryption); ok {
			return nil, errors.New("NoEncryption is only supported as the last fallback")
		}
	}
	return &Fallback{cryptos: cryptos}, nil
}

func (f *Fallback) Encrypt(plaintext []byte) ([]byte, error) {
	return f.cryptos[0].Encrypt(plaintext)
}

func (f *Fallback) Decrypt(ciphertext []byte) ([]byte, error) {
	var errs []error
	for _, c := range f.cryptos {
		plaintext, err := c.Decrypt(ciphertext)
		if err == nil {
			return plaintext, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrCorruptedFile, errors.Join(errs...))
}
