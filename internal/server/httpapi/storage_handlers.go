package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haexhub/haex-sync/internal/common"
	"github.com/haexhub/haex-sync/internal/server/services"
	"github.com/haexhub/haex-sync/internal/server/sigv4"
)

// authenticateStorage resolves the caller from either supported scheme,
// picked by the authorization prefix. SigV4 failures surface as 403,
// bearer failures as 401.
func (s *Server) authenticateStorage(r *http.Request) (userID string, status int, message string) {
	header := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(header, "AWS4-HMAC-SHA256 "):
		auth, err := sigv4.ParseAuthorization(header)
		if err != nil {
			return "", http.StatusForbidden, "malformed signature"
		}
		userID, secret, err := s.creds.Lookup(r.Context(), auth.AccessKeyID)
		if err != nil {
			if errors.Is(err, common.ErrEncryptionKeyMissing) {
				return "", http.StatusServiceUnavailable, "credential service is not configured"
			}
			return "", http.StatusForbidden, "unknown access key"
		}
		if err := sigv4.Verify(r, auth, secret, time.Now().UTC()); err != nil {
			return "", http.StatusForbidden, "signature verification failed"
		}
		return userID, 0, ""

	case strings.HasPrefix(header, "Bearer "):
		userID, err := s.resolver.ResolveToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return "", http.StatusUnauthorized, "invalid token"
		}
		return userID, 0, ""

	default:
		return "", http.StatusUnauthorized, "missing authorization"
	}
}

// storagePath splits the request path into bucket and key. Both the bare
// /s3 form and the /storage/s3 form are accepted; the key may be empty.
func storagePath(path string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(path, "/storage/s3")
	if !found {
		rest, found = strings.CutPrefix(path, "/s3")
	}
	if !found {
		return "", "", false
	}
	rest = strings.TrimPrefix(rest, "/")
	bucket, key, _ = strings.Cut(rest, "/")
	return bucket, key, true
}

// handleStorage is the gateway entry point for all object routes.
func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || !s.store.Configured() {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}

	userID, status, message := s.authenticateStorage(r)
	if status != 0 {
		writeError(w, status, message)
		return
	}

	bucket, key, ok := storagePath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	// Bucket isolation: the caller may only ever touch their own derived
	// bucket, checked before any backend call.
	expected := s.store.BucketFor(userID)
	if bucket != "" && bucket != expected {
		writeError(w, http.StatusForbidden, "bucket does not belong to caller")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if key == "" {
			s.handleList(w, r, expected)
			return
		}
		s.handleGetObject(w, r, expected, key)
	case http.MethodHead:
		s.handleHeadObject(w, r, expected, key)
	case http.MethodPut:
		s.handlePutObject(w, r, expected, key)
	case http.MethodDelete:
		s.handleDeleteObject(w, r, expected, key)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handlePutObject streams an upload to the backend, provisioning the
// user's bucket on first write.
func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	if key == "" {
		writeError(w, http.StatusBadRequest, "object key is required")
		return
	}
	if err := s.store.EnsureBucket(r.Context(), bucket); err != nil {
		s.logger.Error(r.Context(), "bucket provisioning failed", "bucket", bucket, "error", err)
		writeError(w, http.StatusBadGateway, "storage backend unavailable")
		return
	}

	contentLength := int64(-1)
	if r.ContentLength >= 0 {
		contentLength = r.ContentLength
	}
	etag, err := s.store.Put(r.Context(), bucket, key, r.Body, r.Header.Get("Content-Type"), contentLength)
	if err != nil {
		s.logger.Error(r.Context(), "upload failed", "bucket", bucket, "key", key, "error", err)
		writeError(w, http.StatusBadGateway, "storage backend unavailable")
		return
	}
	if etag == "" {
		etag = fmt.Sprintf("%q", strconv.FormatInt(time.Now().UnixNano(), 16))
	}
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
}

// handleGetObject streams a download, forwarding the range header in and
// the range response out.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	obj, err := s.store.Get(r.Context(), bucket, key, r.Header.Get("Range"))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.logger.Error(r.Context(), "download failed", "bucket", bucket, "key", key, "error", err)
		writeError(w, http.StatusBadGateway, "storage backend unavailable")
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	if obj.ETag != "" {
		w.Header().Set("ETag", obj.ETag)
	}
	w.Header().Set("Accept-Ranges", "bytes")
	if obj.ContentRange != "" {
		w.Header().Set("Content-Range", obj.ContentRange)
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = io.Copy(w, obj.Body)
}

func (s *Server) handleHeadObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	if key == "" {
		writeError(w, http.StatusBadRequest, "object key is required")
		return
	}
	info, err := s.store.Head(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.ContentLength, 10))
	if info.ETag != "" {
		w.Header().Set("ETag", info.ETag)
	}
	w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	if key == "" {
		writeError(w, http.StatusBadRequest, "object key is required")
		return
	}
	if err := s.store.Delete(r.Context(), bucket, key); err != nil {
		s.logger.Error(r.Context(), "delete failed", "bucket", bucket, "key", key, "error", err)
		writeError(w, http.StatusBadGateway, "storage backend unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleList returns an S3-compatible listing. A bucket the backend has
// never seen lists as empty rather than erroring: the user simply has
// not uploaded yet.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	opts := services.ListOptions{
		Prefix:            q.Get("prefix"),
		Delimiter:         q.Get("delimiter"),
		ContinuationToken: q.Get("continuation-token"),
	}
	maxKeys := 1000
	if raw := q.Get("max-keys"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "max-keys must be between 1 and 1000")
			return
		}
		maxKeys = n
	}
	opts.MaxKeys = int32(maxKeys)

	result, err := s.store.List(r.Context(), bucket, opts)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeXML(w, http.StatusOK, listBucketResult{
				Name:        bucket,
				Prefix:      opts.Prefix,
				KeyCount:    0,
				MaxKeys:     maxKeys,
				IsTruncated: false,
			})
			return
		}
		s.logger.Error(r.Context(), "list failed", "bucket", bucket, "error", err)
		writeError(w, http.StatusBadGateway, "storage backend unavailable")
		return
	}

	out := listBucketResult{
		Name:                  bucket,
		Prefix:                opts.Prefix,
		Delimiter:             opts.Delimiter,
		KeyCount:              len(result.Contents),
		MaxKeys:               maxKeys,
		IsTruncated:           result.IsTruncated,
		NextContinuationToken: result.NextContinuationToken,
	}
	for _, obj := range result.Contents {
		out.Contents = append(out.Contents, objectInfo{
			Key:          obj.Key,
			LastModified: obj.LastModified.UTC().Format(time.RFC3339),
			ETag:         obj.ETag,
			Size:         obj.Size,
			StorageClass: "STANDARD",
		})
	}
	for _, p := range result.CommonPrefixes {
		out.CommonPrefixes = append(out.CommonPrefixes, commonPrefix{Prefix: p})
	}
	writeXML(w, http.StatusOK, out)
}

// handleStorageUsage reports used bytes against the caller's quota.
func (s *Server) handleStorageUsage(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || !s.store.Configured() {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	userID, status, message := s.authenticateStorage(r)
	if status != 0 {
		writeError(w, status, message)
		return
	}

	used, err := s.store.Usage(r.Context(), s.store.BucketFor(userID))
	if err != nil {
		s.logger.Error(r.Context(), "usage scan failed", "error", err)
		writeError(w, http.StatusBadGateway, "storage backend unavailable")
		return
	}
	quota, err := s.quotas.QuotaForUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"used_bytes":  used,
		"quota_bytes": quota.EffectiveBytes(),
		"tier":        quota.TierName,
	})
}
