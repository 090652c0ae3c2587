// Package partitions manages the per-vault physical partitions of the
// change store. Creation and teardown normally run inside database
// triggers on the vault registry; this manager exposes the same
// operations to Go code and repairs drift at startup.
package partitions

import "context"

// Manager is the partition lifecycle contract.
type Manager interface {
	// EnsurePartition creates the vault's partition with its policies and
	// change-feed registration. Idempotent.
	EnsurePartition(ctx context.Context, vaultID string) error

	// DropPartition removes the vault's partition and any rows that
	// landed in the default partition.
	DropPartition(ctx context.Context, vaultID string) error

	// EnsureAll walks every registered vault and repairs missing
	// partitions. Run once at startup.
	EnsureAll(ctx context.Context) error
}
