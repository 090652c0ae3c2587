package credentials

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

// PostgresRepository implements credential storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists a freshly minted credential. Both user_id and
// access_key_id are unique; a collision on either returns
// common.ErrorAlreadyExists so the service can re-read the winner.
func (r *PostgresRepository) Create(ctx context.Context, cred *models.StorageCredential) (*models.StorageCredential, error) {
	query := `
		INSERT INTO user_storage_credentials (user_id, access_key_id, encrypted_secret_key)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		cred.UserID, cred.AccessKeyID, cred.EncryptedSecretKey,
	).Scan(&cred.ID, &cred.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return cred, nil
}

// FindByUser returns the user's credential or common.ErrorNotFound.
func (r *PostgresRepository) FindByUser(ctx context.Context, userID string) (*models.StorageCredential, error) {
	query := `
		SELECT id, user_id, access_key_id, encrypted_secret_key, created_at
		FROM user_storage_credentials
		WHERE user_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID))
}

// FindByAccessKey resolves an access-key-id to its credential row. Used
// only by the SigV4 verification path.
func (r *PostgresRepository) FindByAccessKey(ctx context.Context, accessKeyID string) (*models.StorageCredential, error) {
	query := `
		SELECT id, user_id, access_key_id, encrypted_secret_key, created_at
		FROM user_storage_credentials
		WHERE access_key_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, accessKeyID))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.StorageCredential, error) {
	c := &models.StorageCredential{}
	err := row.Scan(&c.ID, &c.UserID, &c.AccessKeyID, &c.EncryptedSecretKey, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// DeleteByUser removes the user's credential. Deleting an absent
// credential is not an error; rotation runs delete-then-mint.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_storage_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
