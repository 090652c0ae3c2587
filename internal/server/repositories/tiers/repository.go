// Package tiers reads the storage tier catalog and resolves per-user
// quotas. The catalog is read-only from the server's point of view.
package tiers

import (
	"context"

	"github.com/haexhub/haex-sync/internal/server/models"
)

// Repository is the tier/quota lookup contract.
type Repository interface {
	List(ctx context.Context) ([]*models.StorageTier, error)
	QuotaForUser(ctx context.Context, userID string) (*models.UserQuota, error)
}
