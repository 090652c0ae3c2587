// Package repomanager wires repository constructors to a database handle
// and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/haexhub/haex-sync/internal/dbx"
	"github.com/haexhub/haex-sync/internal/server/repositories/changes"
	"github.com/haexhub/haex-sync/internal/server/repositories/credentials"
	"github.com/haexhub/haex-sync/internal/server/repositories/partitions"
	"github.com/haexhub/haex-sync/internal/server/repositories/tiers"
	"github.com/haexhub/haex-sync/internal/server/repositories/vaults"
)

// RepositoryManager vends repositories bound to a DBTX, so services can
// hand the same repository type either a pooled connection or an open
// transaction.
type RepositoryManager interface {
	Vaults(db dbx.DBTX) vaults.Repository
	Changes(db dbx.DBTX) changes.Repository
	Credentials(db dbx.DBTX) credentials.Repository
	Tiers(db dbx.DBTX) tiers.Repository
	Partitions(db dbx.DBTX) partitions.Manager
	RunMigrations(ctx context.Context, db *sql.DB) error
}
