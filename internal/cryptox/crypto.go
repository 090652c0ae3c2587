// Package cryptox provides the symmetric encryption used to keep storage
// credential secrets encrypted at rest. Blobs are sealed with
// XChaCha20-Poly1305 under a process-wide key; the associated data binds
// each blob to its access-key-id so a ciphertext cannot be replayed onto
// a different credential row.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCiphertextTooShort is returned when a blob is shorter than the
// nonce prefix it must carry.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encryptor seals and opens secret blobs with a fixed process key.
type Encryptor struct {
	key []byte
}

// NewEncryptor derives a 32-byte key from the configured process secret.
// The secret is hashed so operators may supply a passphrase of any length.
func NewEncryptor(processSecret string) (*Encryptor, error) {
	if processSecret == "" {
		return nil, errors.New("empty encryption secret")
	}
	sum := sha256.Sum256([]byte(processSecret))
	return &Encryptor{key: sum[:]}, nil
}

// Seal encrypts plaintext bound to the given associated data. The random
// 24-byte nonce is prefixed to the returned blob.
func (e *Encryptor) Seal(plaintext, associated []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, fmt.Errorf("aead init: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, associated), nil
}

// Open decrypts a blob produced by Seal. The associated data must match
// the value used at seal time.
func (e *Encryptor) Open(blob, associated []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, fmt.Errorf("aead init: %w", err)
	}
	if len(blob) < aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, associated)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plaintext, nil
}
