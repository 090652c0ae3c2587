// Package models holds the server-side domain structs persisted by the
// repositories. Encrypted fields are opaque byte blobs; the server never
// holds vault plaintext.
package models

import "time"

// Vault is one user's encrypted logical database. The key and name are
// ciphertext; the two salts feed two independent PBKDF2 derivations and
// the two nonces are the matching AES-GCM IVs.
type Vault struct {
	ID                string
	UserID            string
	VaultID           string
	EncryptedVaultKey []byte
	EncryptedName     []byte
	VaultKeySalt      []byte
	VaultNameSalt     []byte
	KeyNonce          []byte
	NameNonce         []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
