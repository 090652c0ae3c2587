package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haexhub/haex-sync/internal/common"
	"github.com/haexhub/haex-sync/internal/cryptox"
	"github.com/haexhub/haex-sync/internal/server/repositories/repomanager"
)

var (
	accessKeyRe = regexp.MustCompile(`^HAEX[A-Z0-9]{16}$`)
	secretRe    = regexp.MustCompile(`^[A-Za-z0-9+/]{40}$`)
)

func newCredService(t *testing.T) (*CredentialService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	enc, err := cryptox.NewEncryptor("unit-test-process-key")
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	return NewCredentialService(db, repomanager.NewPostgresRepositoryManager(), enc), mock
}

func TestGenerate_KeyShapes(t *testing.T) {
	svc, _ := newCredService(t)

	pair, encrypted, err := svc.generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !accessKeyRe.MatchString(pair.AccessKeyID) {
		t.Errorf("access key %q does not match ^HAEX[A-Z0-9]{16}$", pair.AccessKeyID)
	}
	if !secretRe.MatchString(pair.SecretKey) {
		t.Errorf("secret %q does not match ^[A-Za-z0-9+/]{40}$", pair.SecretKey)
	}
	if len(encrypted) == 0 {
		t.Error("empty encrypted blob")
	}

	// The blob decrypts back with the access key as associated data.
	enc, _ := cryptox.NewEncryptor("unit-test-process-key")
	plain, err := enc.Open(encrypted, []byte(pair.AccessKeyID))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(plain) != pair.SecretKey {
		t.Error("decrypted secret differs from minted secret")
	}
}

func TestGetOrCreate_MintsOnFirstUse(t *testing.T) {
	svc, mock := newCredService(t)

	mock.ExpectQuery(`SELECT .* FROM user_storage_credentials\s+WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO user_storage_credentials .* RETURNING id, created_at`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("cred-1", time.Now()))

	pair, err := svc.GetOrCreate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !accessKeyRe.MatchString(pair.AccessKeyID) || !secretRe.MatchString(pair.SecretKey) {
		t.Fatalf("minted pair malformed: %+v", pair)
	}
}

func TestGetOrCreate_WithoutEncryptionKey(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	svc := NewCredentialService(db, repomanager.NewPostgresRepositoryManager(), nil)
	if _, err := svc.GetOrCreate(context.Background(), "u1"); !errors.Is(err, common.ErrEncryptionKeyMissing) {
		t.Fatalf("want ErrEncryptionKeyMissing, got %v", err)
	}
}

func TestLookup_UnknownKey(t *testing.T) {
	svc, mock := newCredService(t)

	mock.ExpectQuery(`SELECT .* FROM user_storage_credentials\s+WHERE access_key_id = \$1`).
		WithArgs("HAEXZZZZZZZZZZZZZZZZ").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, _, err := svc.Lookup(context.Background(), "HAEXZZZZZZZZZZZZZZZZ")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestRotate_DeletesThenMintsInOneTransaction(t *testing.T) {
	svc, mock := newCredService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM user_storage_credentials WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO user_storage_credentials .* RETURNING id, created_at`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("cred-2", time.Now()))
	mock.ExpectCommit()

	pair, err := svc.Rotate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if !accessKeyRe.MatchString(pair.AccessKeyID) {
		t.Fatalf("rotated key malformed: %q", pair.AccessKeyID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
