// Package crypto provides the encryption strategies applied to file and
// checkpoint content before it reaches the database.
//
// Implementations must map any undecryptable input to
// domain.ErrCorruptedFile so callers can distinguish key problems from
// infrastructure failures.
package crypto

// Crypto encrypts and decrypts content byte slices.
type Crypto interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// NoEncryption is the pass-through strategy. Encrypt and Decrypt return
// their input unchanged, so Decrypt never fails.
type NoEncryption struct{}

var _ Crypto = NoEncryption{}

func (NoEncryption) Encrypt(plaintext []byte) ([]byte, error) { return plaintext, nil }

func (NoEncryption) Decrypt(ciphertext []byte) ([]byte, error) { return ciphertext, nil }
