package vaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/haexhub/haex-sync/internal/common"
	"github.com/haexhub/haex-sync/internal/dbx"
	"github.com/haexhub/haex-sync/internal/server/models"
)

const uniqueViolation = "23505"

// PostgresRepository implements the vault registry over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a vault record. A second vault with the same
// (user_id, vault_id) yields common.ErrorAlreadyExists. The insert fires
// the partition-creation trigger on the database side.
func (r *PostgresRepository) Create(ctx context.Context, vault *models.Vault) (*models.Vault, error) {
	query := `
		INSERT INTO vault_keys
			(user_id, vault_id, encrypted_vault_key, encrypted_vault_name,
			 vault_key_salt, vault_name_salt, vault_key_nonce, vault_name_nonce)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		vault.UserID, vault.VaultID, vault.EncryptedVaultKey, vault.EncryptedName,
		vault.VaultKeySalt, vault.VaultNameSalt, vault.KeyNonce, vault.NameNonce,
	).Scan(&vault.ID, &vault.CreatedAt, &vault.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return vault, nil
}

// ListByUser returns the user's vaults ordered by creation time, without
// loading the key blobs.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Vault, error) {
	query := `
		SELECT id, vault_id, encrypted_vault_name, vault_name_salt, vault_name_nonce, created_at, updated_at
		FROM vault_keys
		WHERE user_id = $1
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select vaults: %w", err)
	}
	defer rows.Close()

	var result []*models.Vault
	for rows.Next() {
		v := &models.Vault{UserID: userID}
		if err := rows.Scan(&v.ID, &v.VaultID, &v.EncryptedName, &v.VaultNameSalt, &v.NameNonce, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns one vault's full key bundle, or common.ErrorNotFound when
// the vault does not exist or is owned by someone else.
func (r *PostgresRepository) Get(ctx context.Context, userID, vaultID string) (*models.Vault, error) {
	query := `
		SELECT id, encrypted_vault_key, encrypted_vault_name,
		       vault_key_salt, vault_name_salt, vault_key_nonce, vault_name_nonce,
		       created_at, updated_at
		FROM vault_keys
		WHERE user_id = $1 AND vault_id = $2`

	v := &models.Vault{UserID: userID, VaultID: vaultID}
	err := r.db.QueryRowContext(ctx, query, userID, vaultID).Scan(
		&v.ID, &v.EncryptedVaultKey, &v.EncryptedName,
		&v.VaultKeySalt, &v.VaultNameSalt, &v.KeyNonce, &v.NameNonce,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// UpdateName replaces the encrypted vault name and its nonce.
func (r *PostgresRepository) UpdateName(ctx context.Context, userID, vaultID string, encryptedName, nameNonce []byte) error {
	query := `
		UPDATE vault_keys
		SET encrypted_vault_name = $3, vault_name_nonce = $4, updated_at = now()
		WHERE user_id = $1 AND vault_id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, vaultID, encryptedName, nameNonce)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Delete removes the vault record. The delete trigger drops the vault's
// partition, taking every change record with it.
func (r *PostgresRepository) Delete(ctx context.Context, userID, vaultID string) error {
	query := `DELETE FROM vault_keys WHERE user_id = $1 AND vault_id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, vaultID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
