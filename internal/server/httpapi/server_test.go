package httpapi

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/haexhub/haex-sync/internal/common"
	"github.com/haexhub/haex-sync/internal/logging"
	sc "github.com/haexhub/haex-sync/internal/server/config"
	"github.com/haexhub/haex-sync/internal/server/identity"
	"github.com/haexhub/haex-sync/internal/server/models"
	"github.com/haexhub/haex-sync/internal/server/services"
)

// ---- shared stubs ----

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type stubResolver struct {
	users map[string]string // token -> user id
}

func (s *stubResolver) ResolveToken(token string) (string, error) {
	if id, ok := s.users[token]; ok {
		return id, nil
	}
	return "", common.ErrInvalidToken
}

type stubIdentity struct {
	session *identity.Session
	err     error
}

func (s *stubIdentity) Login(ctx context.Context, email, password string) (*identity.Session, error) {
	return s.session, s.err
}

func (s *stubIdentity) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	return s.session, s.err
}

func (s *stubIdentity) CreateUser(ctx context.Context, email, password string) (*identity.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &s.session.User, nil
}

type stubSync struct {
	pushFn func(ctx context.Context, userID, vaultID string, subs []*models.ChangeSubmission) (*models.PushResult, error)
	pullFn func(ctx context.Context, userID, vaultID string, cursor models.PullCursor, excludeDeviceID string, limit int) (*models.PullPage, error)
}

func (s *stubSync) Push(ctx context.Context, userID, vaultID string, subs []*models.ChangeSubmission) (*models.PushResult, error) {
	return s.pushFn(ctx, userID, vaultID, subs)
}

func (s *stubSync) Pull(ctx context.Context, userID, vaultID string, cursor models.PullCursor, excludeDeviceID string, limit int) (*models.PullPage, error) {
	return s.pullFn(ctx, userID, vaultID, cursor, excludeDeviceID, limit)
}

type stubVaults struct {
	vaults map[string]*models.Vault // "user/vault" -> vault
}

func vkey(userID, vaultID string) string { return userID + "/" + vaultID }

func (s *stubVaults) Create(ctx context.Context, v *models.Vault) (*models.Vault, error) {
	k := vkey(v.UserID, v.VaultID)
	if _, ok := s.vaults[k]; ok {
		return nil, common.ErrorAlreadyExists
	}
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	s.vaults[k] = v
	return v, nil
}

func (s *stubVaults) List(ctx context.Context, userID string) ([]*models.Vault, error) {
	var out []*models.Vault
	for _, v := range s.vaults {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *stubVaults) Get(ctx context.Context, userID, vaultID string) (*models.Vault, error) {
	if v, ok := s.vaults[vkey(userID, vaultID)]; ok {
		return v, nil
	}
	return nil, common.ErrorNotFound
}

func (s *stubVaults) Rename(ctx context.Context, userID, vaultID string, name, nonce []byte) error {
	v, ok := s.vaults[vkey(userID, vaultID)]
	if !ok {
		return common.ErrorNotFound
	}
	v.EncryptedName, v.NameNonce = name, nonce
	return nil
}

func (s *stubVaults) Delete(ctx context.Context, userID, vaultID string) error {
	if _, ok := s.vaults[vkey(userID, vaultID)]; !ok {
		return common.ErrorNotFound
	}
	delete(s.vaults, vkey(userID, vaultID))
	return nil
}

type stubCreds struct {
	byAccessKey map[string]struct{ userID, secret string }
}

func (s *stubCreds) GetOrCreate(ctx context.Context, userID string) (*services.Credentials, error) {
	for ak, v := range s.byAccessKey {
		if v.userID == userID {
			return &services.Credentials{AccessKeyID: ak, SecretKey: v.secret}, nil
		}
	}
	return &services.Credentials{AccessKeyID: "HAEXAAAAAAAAAAAAAAAA", SecretKey: "s"}, nil
}

func (s *stubCreds) Lookup(ctx context.Context, accessKeyID string) (string, string, error) {
	if v, ok := s.byAccessKey[accessKeyID]; ok {
		return v.userID, v.secret, nil
	}
	return "", "", common.ErrorNotFound
}

func (s *stubCreds) Rotate(ctx context.Context, userID string) (*services.Credentials, error) {
	return &services.Credentials{AccessKeyID: "HAEXBBBBBBBBBBBBBBBB", SecretKey: "s2"}, nil
}

// stubStore records backend calls so tests can assert isolation checks
// run before any backend traffic.
type stubStore struct {
	configured bool
	calls      []string
	objects    map[string][]byte // bucket/key -> data
	listErr    error
}

func (s *stubStore) Configured() bool { return s.configured }

func (s *stubStore) BucketFor(userID string) string { return "user-" + userID }

func (s *stubStore) EnsureBucket(ctx context.Context, bucket string) error {
	s.calls = append(s.calls, "ensure:"+bucket)
	return nil
}

func (s *stubStore) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string, contentLength int64) (string, error) {
	data, _ := io.ReadAll(body)
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[bucket+"/"+key] = data
	s.calls = append(s.calls, "put:"+bucket+"/"+key)
	return `"etag-1"`, nil
}

func (s *stubStore) Get(ctx context.Context, bucket, key, rangeHeader string) (*services.Object, error) {
	s.calls = append(s.calls, "get:"+bucket+"/"+key)
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &services.Object{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   "application/octet-stream",
		ContentLength: int64(len(data)),
		ETag:          `"etag-1"`,
	}, nil
}

func (s *stubStore) Head(ctx context.Context, bucket, key string) (*services.ObjectInfo, error) {
	s.calls = append(s.calls, "head:"+bucket+"/"+key)
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &services.ObjectInfo{ContentLength: int64(len(data)), ETag: `"etag-1"`, LastModified: time.Now()}, nil
}

func (s *stubStore) Delete(ctx context.Context, bucket, key string) error {
	s.calls = append(s.calls, "delete:"+bucket+"/"+key)
	delete(s.objects, bucket+"/"+key)
	return nil
}

func (s *stubStore) List(ctx context.Context, bucket string, opts services.ListOptions) (*services.ListResult, error) {
	s.calls = append(s.calls, "list:"+bucket)
	if s.listErr != nil {
		return nil, s.listErr
	}
	return &services.ListResult{}, nil
}

func (s *stubStore) Usage(ctx context.Context, bucket string) (int64, error) {
	return 42, nil
}

type stubQuotas struct{}

func (s *stubQuotas) QuotaForUser(ctx context.Context, userID string) (*models.UserQuota, error) {
	return &models.UserQuota{UserID: userID, TierName: "free", QuotaBytes: 1 << 30}, nil
}

// newTestServer assembles a Server over the stubs.
func newTestServer(store *stubStore) (*Server, *stubResolver) {
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	cfg.AuthServiceKey = "service-key"
	cfg.S3Endpoint = "http://backend:9000"

	resolver := &stubResolver{users: map[string]string{"tok-alpha": "alpha", "tok-beta": "beta"}}
	srv := NewServer(cfg, testLogger(), resolver, &stubIdentity{}, &stubSync{}, &stubVaults{vaults: map[string]*models.Vault{}}, &stubCreds{byAccessKey: map[string]struct{ userID, secret string }{}}, store, &stubQuotas{})
	return srv, resolver
}
