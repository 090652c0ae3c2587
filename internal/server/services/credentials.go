package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/haexhub/haex-sync/internal/common"
	"github.com/haexhub/haex-sync/internal/cryptox"
	"github.com/haexhub/haex-sync/internal/dbx"
	"github.com/haexhub/haex-sync/internal/server/models"
	"github.com/haexhub/haex-sync/internal/server/repositories/repomanager"
)

const (
	accessKeyPrefix   = "HAEX"
	accessKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	accessKeyLength   = 16

	secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	secretLength   = 40
)

// Credentials is a decrypted access key pair handed to the owner.
type Credentials struct {
	AccessKeyID string
	SecretKey   string
}

// CredentialService mints, looks up, and rotates storage credentials.
// Secrets are encrypted at rest with the process key, bound to their
// access-key-id, and decrypted only on demand.
type CredentialService struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
	enc   *cryptox.Encryptor
}

// NewCredentialService constructs a CredentialService. enc may be nil
// when no encryption key is configured; every operation then refuses.
func NewCredentialService(db *sql.DB, repos repomanager.RepositoryManager, enc *cryptox.Encryptor) *CredentialService {
	return &CredentialService{db: db, repos: repos, enc: enc}
}

// GetOrCreate returns the user's credentials, minting them on first use.
// A concurrent first call may lose the insert race; the loser re-reads
// the winner's row.
func (s *CredentialService) GetOrCreate(ctx context.Context, userID string) (*Credentials, error) {
	if s.enc == nil {
		return nil, common.ErrEncryptionKeyMissing
	}

	repo := s.repos.Credentials(s.db)
	existing, err := repo.FindByUser(ctx, userID)
	if err == nil {
		return s.decrypt(existing)
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	minted, err := s.mint(ctx, userID)
	if errors.Is(err, common.ErrorAlreadyExists) {
		winner, err := repo.FindByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return s.decrypt(winner)
	}
	return minted, err
}

// Lookup resolves an access-key-id to its owner and decrypted secret.
// Unknown keys return common.ErrorNotFound. Used only by the SigV4
// verification path.
func (s *CredentialService) Lookup(ctx context.Context, accessKeyID string) (userID, secret string, err error) {
	if s.enc == nil {
		return "", "", common.ErrEncryptionKeyMissing
	}
	cred, err := s.repos.Credentials(s.db).FindByAccessKey(ctx, accessKeyID)
	if err != nil {
		return "", "", err
	}
	plain, err := s.enc.Open(cred.EncryptedSecretKey, []byte(cred.AccessKeyID))
	if err != nil {
		return "", "", fmt.Errorf("decrypt secret: %w", err)
	}
	return cred.UserID, string(plain), nil
}

// Rotate atomically replaces the user's credentials: the old pair stops
// verifying the moment the transaction commits.
func (s *CredentialService) Rotate(ctx context.Context, userID string) (*Credentials, error) {
	if s.enc == nil {
		return nil, common.ErrEncryptionKeyMissing
	}

	var out *Credentials
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Credentials(tx)
		if err := repo.DeleteByUser(ctx, userID); err != nil {
			return err
		}
		pair, encrypted, err := s.generate()
		if err != nil {
			return err
		}
		_, err = repo.Create(ctx, &models.StorageCredential{
			UserID:             userID,
			AccessKeyID:        pair.AccessKeyID,
			EncryptedSecretKey: encrypted,
		})
		if err != nil {
			return err
		}
		out = pair
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *CredentialService) mint(ctx context.Context, userID string) (*Credentials, error) {
	pair, encrypted, err := s.generate()
	if err != nil {
		return nil, err
	}
	_, err = s.repos.Credentials(s.db).Create(ctx, &models.StorageCredential{
		UserID:             userID,
		AccessKeyID:        pair.AccessKeyID,
		EncryptedSecretKey: encrypted,
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *CredentialService) generate() (*Credentials, []byte, error) {
	suffix, err := common.RandomStringFrom(accessKeyAlphabet, accessKeyLength)
	if err != nil {
		return nil, nil, err
	}
	secret, err := common.RandomStringFrom(secretAlphabet, secretLength)
	if err != nil {
		return nil, nil, err
	}
	accessKeyID := accessKeyPrefix + suffix

	encrypted, err := s.enc.Seal([]byte(secret), []byte(accessKeyID))
	if err != nil {
		return nil, nil, err
	}
	return &Credentials{AccessKeyID: accessKeyID, SecretKey: secret}, encrypted, nil
}

func (s *CredentialService) decrypt(cred *models.StorageCredential) (*Credentials, error) {
	plain, err := s.enc.Open(cred.EncryptedSecretKey, []byte(cred.AccessKeyID))
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}
	return &Credentials{AccessKeyID: cred.AccessKeyID, SecretKey: string(plain)}, nil
}
