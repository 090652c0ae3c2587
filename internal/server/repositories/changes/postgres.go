package changes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haexhub/haex-sync/internal/dbx"
	"github.com/haexhub/haex-sync/internal/server/models"
)

// upsertChunkSize bounds the number of submissions per statement so the
// parameter count stays well under the backend's 65535 limit
// (paramsPerRow * upsertChunkSize parameters per statement).
const (
	upsertChunkSize = 5000
	paramsPerRow    = 9
)

// PostgresRepository implements the change store over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// UpsertBatch writes the submissions in chunks. Each chunk is a single
// multi-row upsert keyed by the cell constraint; the WHERE guard makes a
// lower-or-equal HLC a no-op, so commit order between concurrent pushes
// cannot override a newer value. updated_at advances only when the row
// actually changes, which is what the pull cursor relies on.
//
// The caller owns transactionality: bind the repository to a *sql.Tx so
// all chunks commit or roll back together.
func (r *PostgresRepository) UpsertBatch(ctx context.Context, userID, vaultID string, subs []*models.ChangeSubmission) (int, error) {
	total := 0
	for start := 0; start < len(subs); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(subs) {
			end = len(subs)
		}
		n, err := r.upsertChunk(ctx, userID, vaultID, subs[start:end])
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (r *PostgresRepository) upsertChunk(ctx context.Context, userID, vaultID string, subs []*models.ChangeSubmission) (int, error) {
	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO sync_changes
			(user_id, vault_id, table_name, row_pks, column_name, hlc_timestamp, device_id, encrypted_value, nonce)
		VALUES `)

	args := make([]any, 0, len(subs)*paramsPerRow)
	for i, s := range subs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * paramsPerRow
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
		args = append(args,
			userID, vaultID, s.TableName, s.RowPKs, s.ColumnName,
			s.HLCTimestamp, s.DeviceID, s.EncryptedValue, s.Nonce)
	}

	sb.WriteString(`
		ON CONFLICT ON CONSTRAINT sync_changes_cell_unique
		DO UPDATE SET
			hlc_timestamp = EXCLUDED.hlc_timestamp,
			device_id = EXCLUDED.device_id,
			encrypted_value = EXCLUDED.encrypted_value,
			nonce = EXCLUDED.nonce,
			updated_at = now()
		WHERE EXCLUDED.hlc_timestamp > sync_changes.hlc_timestamp`)

	res, err := r.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return int(n), nil
}

// selectPageQuery pages rows by (max_updated, table_name, row_pks) and
// then joins back to return every column of the selected rows, so a
// newly-arriving peer can always materialize a complete row from one
// page. The composite row comparison keeps the cursor stable when bulk
// imports stamp many rows with the same updated_at.
const selectPageQuery = `
	WITH page AS (
		SELECT table_name, row_pks, max(updated_at) AS max_updated
		FROM sync_changes
		WHERE vault_id = $1
		  AND user_id = $2
		  AND ($3 = '' OR device_id IS DISTINCT FROM $3)
		GROUP BY table_name, row_pks
		HAVING (max(updated_at), table_name, row_pks) > ($4::timestamptz, $5, $6)
		ORDER BY max_updated, table_name, row_pks
		LIMIT $7
	)
	SELECT c.id, c.table_name, c.row_pks, c.column_name, c.hlc_timestamp,
	       c.device_id, c.encrypted_value, c.nonce, c.created_at, c.updated_at,
	       p.max_updated
	FROM sync_changes c
	JOIN page p ON c.table_name = p.table_name AND c.row_pks = p.row_pks
	WHERE c.vault_id = $1 AND c.user_id = $2
	ORDER BY p.max_updated, p.table_name, p.row_pks, c.column_name NULLS FIRST`

// SelectPage implements the stable pull. A zero cursor is lowered to
// (-infinity, "", "") so the same composite comparison covers the first
// page. HasMore is derived from the number of distinct rows in the page,
// not the number of change records.
func (r *PostgresRepository) SelectPage(ctx context.Context, userID, vaultID string, cursor models.PullCursor, excludeDeviceID string, limit int) (*models.PullPage, error) {
	afterUpdated := "-infinity"
	if !cursor.AfterUpdatedAt.IsZero() {
		afterUpdated = cursor.AfterUpdatedAt.UTC().Format("2006-01-02 15:04:05.999999-07")
	}

	rows, err := r.db.QueryContext(ctx, selectPageQuery,
		vaultID, userID, excludeDeviceID,
		afterUpdated, cursor.AfterTableName, cursor.AfterRowPKs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select changes: %w", err)
	}
	defer rows.Close()

	page := &models.PullPage{}
	rowCount := 0
	var lastTable, lastPKs string
	var lastMax time.Time

	for rows.Next() {
		var c models.Change
		var maxUpdated time.Time
		if err := rows.Scan(
			&c.ID, &c.TableName, &c.RowPKs, &c.ColumnName, &c.HLCTimestamp,
			&c.DeviceID, &c.EncryptedValue, &c.Nonce, &c.CreatedAt, &c.UpdatedAt,
			&maxUpdated,
		); err != nil {
			return nil, err
		}
		c.UserID = userID
		c.VaultID = vaultID
		if c.TableName != lastTable || c.RowPKs != lastPKs || rowCount == 0 {
			rowCount++
			lastTable, lastPKs, lastMax = c.TableName, c.RowPKs, maxUpdated
		}
		page.Changes = append(page.Changes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page.HasMore = rowCount == limit
	page.LastUpdatedAt = lastMax
	page.LastTableName = lastTable
	page.LastRowPKs = lastPKs
	return page, nil
}
