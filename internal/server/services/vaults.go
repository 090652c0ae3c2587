package services

import (
	"context"
	"database/sql"

	"github.com/haexhub/haex-sync/internal/common"
	"github.com/haexhub/haex-sync/internal/server/models"
	"github.com/haexhub/haex-sync/internal/server/repositories/repomanager"
)

// VaultService implements the vault registry operations. Partition
// lifecycle rides on database triggers fired by the registry writes.
type VaultService struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

// NewVaultService constructs a VaultService over the shared pool.
func NewVaultService(db *sql.DB, repos repomanager.RepositoryManager) *VaultService {
	return &VaultService{db: db, repos: repos}
}

// Create registers a vault for the user. The client supplies the vault
// id and the full encrypted key bundle.
func (s *VaultService) Create(ctx context.Context, vault *models.Vault) (*models.Vault, error) {
	if vault.VaultID == "" || len(vault.EncryptedVaultKey) == 0 {
		return nil, common.ErrorValidation
	}
	return s.repos.Vaults(s.db).Create(ctx, vault)
}

// List returns the user's vaults without key material.
func (s *VaultService) List(ctx context.Context, userID string) ([]*models.Vault, error) {
	return s.repos.Vaults(s.db).ListByUser(ctx, userID)
}

// Get returns one vault's key bundle, owner-scoped.
func (s *VaultService) Get(ctx context.Context, userID, vaultID string) (*models.Vault, error) {
	return s.repos.Vaults(s.db).Get(ctx, userID, vaultID)
}

// Rename replaces the encrypted vault name and nonce.
func (s *VaultService) Rename(ctx context.Context, userID, vaultID string, encryptedName, nameNonce []byte) error {
	if len(encryptedName) == 0 || len(nameNonce) == 0 {
		return common.ErrorValidation
	}
	return s.repos.Vaults(s.db).UpdateName(ctx, userID, vaultID, encryptedName, nameNonce)
}

// Delete removes the vault; the registry trigger drops its partition and
// every change record with it.
func (s *VaultService) Delete(ctx context.Context, userID, vaultID string) error {
	return s.repos.Vaults(s.db).Delete(ctx, userID, vaultID)
}
