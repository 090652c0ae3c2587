// Package changes provides the PostgreSQL-backed change store: cell-level
// last-write-wins upserts and the composite-cursor pull query.
package changes

import (
	"context"

	"github.com/haexhub/haex-sync/internal/server/models"
)

// Repository is the change-store contract used by the sync service.
type Repository interface {
	// UpsertBatch merges the submissions into the store with HLC-gated
	// last-write-wins semantics and returns the number of rows actually
	// written. Callers are expected to run it inside a transaction.
	UpsertBatch(ctx context.Context, userID, vaultID string, subs []*models.ChangeSubmission) (int, error)

	// SelectPage runs the two-step cursor pull: a row page over
	// max(updated_at) groups, then every column of the selected rows.
	SelectPage(ctx context.Context, userID, vaultID string, cursor models.PullCursor, excludeDeviceID string, limit int) (*models.PullPage, error)
}
