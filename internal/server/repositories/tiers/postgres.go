package tiers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/haexhub/haex-sync/internal/dbx"
	"github.com/haexhub/haex-sync/internal/server/models"
)

// PostgresRepository implements tier lookups over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// List returns the tier catalog.
func (r *PostgresRepository) List(ctx context.Context) ([]*models.StorageTier, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, quota_bytes FROM storage_tiers ORDER BY quota_bytes`)
	if err != nil {
		return nil, fmt.Errorf("failed to select tiers: %w", err)
	}
	defer rows.Close()

	var result []*models.StorageTier
	for rows.Next() {
		t := &models.StorageTier{}
		if err := rows.Scan(&t.Name, &t.QuotaBytes); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// QuotaForUser resolves the user's quota: their tier assignment joined to
// the catalog, with the admin override winning when present. A user with
// no assignment falls back to the free tier.
func (r *PostgresRepository) QuotaForUser(ctx context.Context, userID string) (*models.UserQuota, error) {
	query := `
		SELECT t.name, t.quota_bytes, q.override_bytes
		FROM user_storage_quotas q
		JOIN storage_tiers t ON t.name = q.tier_name
		WHERE q.user_id = $1`

	quota := &models.UserQuota{UserID: userID}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&quota.TierName, &quota.QuotaBytes, &quota.OverrideBytes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.defaultQuota(ctx, userID)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return quota, nil
}

func (r *PostgresRepository) defaultQuota(ctx context.Context, userID string) (*models.UserQuota, error) {
	quota := &models.UserQuota{UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`SELECT name, quota_bytes FROM storage_tiers WHERE name = 'free'`,
	).Scan(&quota.TierName, &quota.QuotaBytes)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return quota, nil
}
