// Package vaults provides the PostgreSQL-backed vault registry.
package vaults

import (
	"context"

	"github.com/haexhub/haex-sync/internal/server/models"
)

// Repository is the vault-registry contract. Every operation is scoped to
// the owning user; a vault belonging to someone else behaves as absent.
type Repository interface {
	Create(ctx context.Context, vault *models.Vault) (*models.Vault, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Vault, error)
	Get(ctx context.Context, userID, vaultID string) (*models.Vault, error)
	UpdateName(ctx context.Context, userID, vaultID string, encryptedName, nameNonce []byte) error
	Delete(ctx context.Context, userID, vaultID string) error
}
