package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haexhub/haex-sync/internal/common"
	"github.com/haexhub/haex-sync/internal/server/identity"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// storageConfig is the per-user S3 connection bundle handed to clients.
type storageConfig struct {
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

type sessionResponse struct {
	AccessToken   string         `json:"access_token"`
	RefreshToken  string         `json:"refresh_token"`
	ExpiresIn     int64          `json:"expires_in"`
	ExpiresAt     int64          `json:"expires_at"`
	User          identity.User  `json:"user"`
	StorageConfig *storageConfig `json:"storage_config"`
}

// storageConfigFor mints (or fetches) the user's credentials and bundles
// them with the gateway connection settings. Degraded storage or a
// missing encryption key yields nil rather than an error: login still
// succeeds, only file sync is unavailable.
func (s *Server) storageConfigFor(ctx context.Context, userID string) *storageConfig {
	if s.store == nil || !s.store.Configured() {
		return nil
	}
	creds, err := s.creds.GetOrCreate(ctx, userID)
	if err != nil {
		s.logger.Warn(ctx, "storage credentials unavailable", "error", err)
		return nil
	}
	return &storageConfig{
		Endpoint:        s.cfg.S3Endpoint,
		Bucket:          s.store.BucketFor(userID),
		Region:          s.cfg.S3Region,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretKey,
	}
}

func (s *Server) sessionResponseFor(ctx context.Context, session *identity.Session) *sessionResponse {
	return &sessionResponse{
		AccessToken:   session.AccessToken,
		RefreshToken:  session.RefreshToken,
		ExpiresIn:     session.ExpiresIn,
		ExpiresAt:     session.ExpiresAt,
		User:          session.User,
		StorageConfig: s.storageConfigFor(ctx, session.User.ID),
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := s.idp.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger.Error(r.Context(), "login failed", "error", err)
		writeError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponseFor(r.Context(), session))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	session, err := s.idp.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		s.logger.Error(r.Context(), "refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponseFor(r.Context(), session))
}

func (s *Server) handleStorageCredentials(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	cfg := s.storageConfigFor(r.Context(), userID)
	if cfg == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"storage_config": cfg})
}

func (s *Server) handleRotateCredentials(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || !s.store.Configured() {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	userID := userIDFrom(r.Context())
	creds, err := s.creds.Rotate(r.Context(), userID)
	if err != nil {
		s.logger.Error(r.Context(), "credential rotation failed", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"storage_config": &storageConfig{
		Endpoint:        s.cfg.S3Endpoint,
		Bucket:          s.store.BucketFor(userID),
		Region:          s.cfg.S3Region,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretKey,
	}})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.idp.CreateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			writeError(w, http.StatusConflict, "user already exists")
			return
		}
		s.logger.Error(r.Context(), "create user failed", "error", err)
		writeError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}
