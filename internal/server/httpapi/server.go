package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/haexhub/haex-sync/internal/logging"
	sc "github.com/haexhub/haex-sync/internal/server/config"
	"github.com/haexhub/haex-sync/internal/server/identity"
	"github.com/haexhub/haex-sync/internal/server/models"
	"github.com/haexhub/haex-sync/internal/server/services"
)

// Version is reported by the health endpoint.
const Version = "0.7.0"

// timeNowUTC is a seam for tests; an empty pull page stamps its response
// with the current wall-clock.
var timeNowUTC = func() time.Time { return time.Now().UTC() }

// SyncAPI is the sync service surface the handlers depend on.
type SyncAPI interface {
	Push(ctx context.Context, userID, vaultID string, subs []*models.ChangeSubmission) (*models.PushResult, error)
	Pull(ctx context.Context, userID, vaultID string, cursor models.PullCursor, excludeDeviceID string, limit int) (*models.PullPage, error)
}

// VaultAPI is the vault registry surface the handlers depend on.
type VaultAPI interface {
	Create(ctx context.Context, vault *models.Vault) (*models.Vault, error)
	List(ctx context.Context, userID string) ([]*models.Vault, error)
	Get(ctx context.Context, userID, vaultID string) (*models.Vault, error)
	Rename(ctx context.Context, userID, vaultID string, encryptedName, nameNonce []byte) error
	Delete(ctx context.Context, userID, vaultID string) error
}

// CredentialAPI mints and resolves storage credentials.
type CredentialAPI interface {
	GetOrCreate(ctx context.Context, userID string) (*services.Credentials, error)
	Lookup(ctx context.Context, accessKeyID string) (userID, secret string, err error)
	Rotate(ctx context.Context, userID string) (*services.Credentials, error)
}

// IdentityAPI is the identity provider surface forwarded by /auth.
type IdentityAPI interface {
	Login(ctx context.Context, email, password string) (*identity.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.Session, error)
	CreateUser(ctx context.Context, email, password string) (*identity.User, error)
}

// QuotaAPI resolves a user's storage allowance for usage reporting.
type QuotaAPI interface {
	QuotaForUser(ctx context.Context, userID string) (*models.UserQuota, error)
}

// Server wires the handlers to their dependencies.
type Server struct {
	cfg      *sc.Config
	logger   logging.Logger
	resolver TokenResolver
	idp      IdentityAPI
	sync     SyncAPI
	vaults   VaultAPI
	creds    CredentialAPI
	store    services.ObjectStore
	quotas   QuotaAPI
}

// NewServer constructs the HTTP server façade.
func NewServer(cfg *sc.Config, logger logging.Logger, resolver TokenResolver, idp IdentityAPI,
	sync SyncAPI, vaults VaultAPI, creds CredentialAPI, store services.ObjectStore, quotas QuotaAPI) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		resolver: resolver,
		idp:      idp,
		sync:     sync,
		vaults:   vaults,
		creds:    creds,
		store:    store,
		quotas:   quotas,
	}
}

// Handler builds the route table wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHealth)

	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("GET /auth/storage-credentials", s.requireBearer(s.handleStorageCredentials))
	mux.HandleFunc("POST /auth/storage-credentials/rotate", s.requireBearer(s.handleRotateCredentials))
	mux.HandleFunc("POST /auth/admin/create-user", s.requireServiceKey(s.handleCreateUser))

	mux.HandleFunc("POST /sync/vault-key", s.requireBearer(s.handleVaultCreate))
	mux.HandleFunc("GET /sync/vaults", s.requireBearer(s.handleVaultList))
	mux.HandleFunc("GET /sync/vault-key/{vaultId}", s.requireBearer(s.handleVaultGet))
	mux.HandleFunc("PATCH /sync/vault-key/{vaultId}", s.requireBearer(s.handleVaultRename))
	mux.HandleFunc("DELETE /sync/vault/{vaultId}", s.requireBearer(s.handleVaultDelete))
	mux.HandleFunc("POST /sync/push", s.requireBearer(s.handlePush))
	mux.HandleFunc("GET /sync/pull", s.requireBearer(s.handlePull))

	// The gateway accepts both the bare and the /storage-prefixed form.
	mux.HandleFunc("/storage/s3", s.handleStorage)
	mux.HandleFunc("/storage/s3/", s.handleStorage)
	mux.HandleFunc("/s3", s.handleStorage)
	mux.HandleFunc("/s3/", s.handleStorage)
	mux.HandleFunc("GET /storage/usage", s.handleStorageUsage)

	return s.cors(s.logRequests(mux))
}

// handleHealth reports the service identity and which collaborators are
// configured. No auth.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "haex-sync",
		"version":     Version,
		"environment": s.cfg.Environment,
		"database":    s.cfg.DatabaseDSN != "",
		"storage":     s.store != nil && s.store.Configured(),
		"auth":        s.cfg.AuthURL != "",
	})
}
