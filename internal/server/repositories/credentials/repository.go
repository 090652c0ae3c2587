// Package credentials persists storage credentials: the mapping from
// access-key-id to user plus the encrypted secret.
package credentials

import (
	"context"

	"github.com/haexhub/haex-sync/internal/server/models"
)

// Repository is the credential persistence contract.
type Repository interface {
	Create(ctx context.Context, cred *models.StorageCredential) (*models.StorageCredential, error)
	FindByUser(ctx context.Context, userID string) (*models.StorageCredential, error)
	FindByAccessKey(ctx context.Context, accessKeyID string) (*models.StorageCredential, error)
	DeleteByUser(ctx context.Context, userID string) error
}
