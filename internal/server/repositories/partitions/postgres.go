package partitions

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/haexhub/haex-sync/internal/dbx"
)

// ensureConcurrency bounds parallel DDL during bootstrap repair.
const ensureConcurrency = 4

// PartitionName derives the physical partition name for a vault id:
// a fixed prefix plus the id with every non-identifier byte replaced by
// an underscore. Mirrors the SQL function sync_change_partition_name so
// Go-side logging and tests agree with the database.
func PartitionName(vaultID string) string {
	var sb strings.Builder
	sb.WriteString("sync_changes_")
	for _, c := range strings.ToLower(vaultID) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			sb.WriteRune(c)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// PostgresManager implements partition lifecycle by calling the DDL
// functions installed by the migrations, so trigger-driven and Go-driven
// lifecycle share one code path.
type PostgresManager struct {
	db dbx.DBTX
}

// NewPostgresManager constructs a manager bound to the given DBTX.
func NewPostgresManager(db dbx.DBTX) *PostgresManager {
	return &PostgresManager{db: db}
}

// EnsurePartition creates the partition, its row policies, replica
// identity, and publication membership. A partition that already exists
// is a no-op.
func (m *PostgresManager) EnsurePartition(ctx context.Context, vaultID string) error {
	if _, err := m.db.ExecContext(ctx, `SELECT create_vault_partition($1)`, vaultID); err != nil {
		return fmt.Errorf("create partition %s: %w", PartitionName(vaultID), err)
	}
	return nil
}

// DropPartition drops the partition table and cascade-deletes stragglers
// from the default partition.
func (m *PostgresManager) DropPartition(ctx context.Context, vaultID string) error {
	if _, err := m.db.ExecContext(ctx, `SELECT drop_vault_partition($1)`, vaultID); err != nil {
		return fmt.Errorf("drop partition %s: %w", PartitionName(vaultID), err)
	}
	return nil
}

// EnsureAll repairs partition drift: every vault in the registry gets its
// partition (with policies and publication membership) re-ensured. The
// DDL function is idempotent, so repeated runs are safe.
func (m *PostgresManager) EnsureAll(ctx context.Context) error {
	rows, err := m.db.QueryContext(ctx, `SELECT vault_id FROM vault_keys`)
	if err != nil {
		return fmt.Errorf("failed to list vaults: %w", err)
	}
	defer rows.Close()

	var vaultIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		vaultIDs = append(vaultIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ensureConcurrency)
	for _, id := range vaultIDs {
		g.Go(func() error {
			return m.EnsurePartition(ctx, id)
		})
	}
	return g.Wait()
}
