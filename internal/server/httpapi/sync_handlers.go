package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/haexhub/haex-sync/internal/server/models"
	"github.com/haexhub/haex-sync/internal/server/services"
)

// Encrypted blobs travel as base64 in JSON bodies.
type vaultKeyRequest struct {
	VaultID            string `json:"vaultId"`
	EncryptedVaultKey  string `json:"encryptedVaultKey"`
	EncryptedVaultName string `json:"encryptedVaultName"`
	VaultKeySalt       string `json:"vaultKeySalt"`
	VaultNameSalt      string `json:"vaultNameSalt"`
	VaultKeyNonce      string `json:"vaultKeyNonce"`
	VaultNameNonce     string `json:"vaultNameNonce"`
}

type vaultRenameRequest struct {
	EncryptedVaultName string `json:"encryptedVaultName"`
	VaultNameNonce     string `json:"vaultNameNonce"`
}

type vaultSummary struct {
	VaultID            string `json:"vaultId"`
	EncryptedVaultName string `json:"encryptedVaultName"`
	VaultNameSalt      string `json:"vaultNameSalt"`
	VaultNameNonce     string `json:"vaultNameNonce"`
	CreatedAt          string `json:"createdAt"`
	UpdatedAt          string `json:"updatedAt"`
}

type vaultKeyResponse struct {
	VaultID            string `json:"vaultId"`
	EncryptedVaultKey  string `json:"encryptedVaultKey"`
	EncryptedVaultName string `json:"encryptedVaultName"`
	VaultKeySalt       string `json:"vaultKeySalt"`
	VaultNameSalt      string `json:"vaultNameSalt"`
	VaultKeyNonce      string `json:"vaultKeyNonce"`
	VaultNameNonce     string `json:"vaultNameNonce"`
	CreatedAt          string `json:"createdAt"`
	UpdatedAt          string `json:"updatedAt"`
}

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func fromB64(s string) ([]byte, bool) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (s *Server) handleVaultCreate(w http.ResponseWriter, r *http.Request) {
	var req vaultKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	vault := &models.Vault{UserID: userIDFrom(r.Context()), VaultID: req.VaultID}
	fields := []struct {
		src string
		dst *[]byte
	}{
		{req.EncryptedVaultKey, &vault.EncryptedVaultKey},
		{req.EncryptedVaultName, &vault.EncryptedName},
		{req.VaultKeySalt, &vault.VaultKeySalt},
		{req.VaultNameSalt, &vault.VaultNameSalt},
		{req.VaultKeyNonce, &vault.KeyNonce},
		{req.VaultNameNonce, &vault.NameNonce},
	}
	for _, f := range fields {
		b, ok := fromB64(f.src)
		if !ok || len(b) == 0 {
			writeError(w, http.StatusBadRequest, "missing or invalid key material")
			return
		}
		*f.dst = b
	}

	created, err := s.vaults.Create(r.Context(), vault)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vaultKeyResponseFrom(created))
}

func (s *Server) handleVaultList(w http.ResponseWriter, r *http.Request) {
	list, err := s.vaults.List(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]vaultSummary, 0, len(list))
	for _, v := range list {
		out = append(out, vaultSummary{
			VaultID:            v.VaultID,
			EncryptedVaultName: b64(v.EncryptedName),
			VaultNameSalt:      b64(v.VaultNameSalt),
			VaultNameNonce:     b64(v.NameNonce),
			CreatedAt:          services.FormatServerTimestamp(v.CreatedAt),
			UpdatedAt:          services.FormatServerTimestamp(v.UpdatedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"vaults": out})
}

func vaultKeyResponseFrom(v *models.Vault) vaultKeyResponse {
	return vaultKeyResponse{
		VaultID:            v.VaultID,
		EncryptedVaultKey:  b64(v.EncryptedVaultKey),
		EncryptedVaultName: b64(v.EncryptedName),
		VaultKeySalt:       b64(v.VaultKeySalt),
		VaultNameSalt:      b64(v.VaultNameSalt),
		VaultKeyNonce:      b64(v.KeyNonce),
		VaultNameNonce:     b64(v.NameNonce),
		CreatedAt:          services.FormatServerTimestamp(v.CreatedAt),
		UpdatedAt:          services.FormatServerTimestamp(v.UpdatedAt),
	}
}

func (s *Server) handleVaultGet(w http.ResponseWriter, r *http.Request) {
	vault, err := s.vaults.Get(r.Context(), userIDFrom(r.Context()), r.PathValue("vaultId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vaultKeyResponseFrom(vault))
}

func (s *Server) handleVaultRename(w http.ResponseWriter, r *http.Request) {
	var req vaultRenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name, ok1 := fromB64(req.EncryptedVaultName)
	nonce, ok2 := fromB64(req.VaultNameNonce)
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "missing or invalid name material")
		return
	}

	userID := userIDFrom(r.Context())
	vaultID := r.PathValue("vaultId")
	if err := s.vaults.Rename(r.Context(), userID, vaultID, name, nonce); err != nil {
		writeServiceError(w, err)
		return
	}
	vault, err := s.vaults.Get(r.Context(), userID, vaultID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vaultKeyResponseFrom(vault))
}

func (s *Server) handleVaultDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.vaults.Delete(r.Context(), userIDFrom(r.Context()), r.PathValue("vaultId")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type pushChange struct {
	TableName      string  `json:"tableName"`
	RowPKs         string  `json:"rowPks"`
	ColumnName     *string `json:"columnName"`
	HLCTimestamp   string  `json:"hlcTimestamp"`
	DeviceID       *string `json:"deviceId,omitempty"`
	EncryptedValue *string `json:"encryptedValue"`
	Nonce          *string `json:"nonce"`
	BatchID        *string `json:"batchId,omitempty"`
	BatchSeq       *int    `json:"batchSeq,omitempty"`
	BatchTotal     *int    `json:"batchTotal,omitempty"`
}

type pushRequest struct {
	VaultID string       `json:"vaultId"`
	Changes []pushChange `json:"changes"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VaultID == "" || len(req.Changes) == 0 {
		writeError(w, http.StatusBadRequest, "vaultId and changes are required")
		return
	}

	subs := make([]*models.ChangeSubmission, 0, len(req.Changes))
	for _, c := range req.Changes {
		if c.TableName == "" || c.RowPKs == "" || c.HLCTimestamp == "" {
			writeError(w, http.StatusBadRequest, "tableName, rowPks, and hlcTimestamp are required")
			return
		}
		subs = append(subs, &models.ChangeSubmission{
			TableName:      c.TableName,
			RowPKs:         c.RowPKs,
			ColumnName:     c.ColumnName,
			HLCTimestamp:   c.HLCTimestamp,
			DeviceID:       c.DeviceID,
			EncryptedValue: c.EncryptedValue,
			Nonce:          c.Nonce,
			BatchID:        c.BatchID,
			BatchSeq:       c.BatchSeq,
			BatchTotal:     c.BatchTotal,
		})
	}

	res, err := s.sync.Push(r.Context(), userIDFrom(r.Context()), req.VaultID, subs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":           res.Count,
		"lastHlc":         res.LastHLC,
		"serverTimestamp": services.FormatServerTimestamp(res.ServerTimestamp),
	})
}

type pullChange struct {
	TableName      string  `json:"tableName"`
	RowPKs         string  `json:"rowPks"`
	ColumnName     *string `json:"columnName"`
	HLCTimestamp   string  `json:"hlcTimestamp"`
	DeviceID       *string `json:"deviceId"`
	EncryptedValue *string `json:"encryptedValue"`
	Nonce          *string `json:"nonce"`
	UpdatedAt      string  `json:"updatedAt"`
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vaultID := q.Get("vaultId")
	if vaultID == "" {
		writeError(w, http.StatusBadRequest, "vaultId is required")
		return
	}

	limit := services.PullDefaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > services.PullMaxLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	var cursor models.PullCursor
	if raw := q.Get("afterUpdatedAt"); raw != "" {
		t, err := services.ParseCursorTimestamp(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid afterUpdatedAt")
			return
		}
		cursor.AfterUpdatedAt = t
		cursor.AfterTableName = q.Get("afterTableName")
		cursor.AfterRowPKs = q.Get("afterRowPks")
	}

	page, err := s.sync.Pull(r.Context(), userIDFrom(r.Context()), vaultID, cursor, q.Get("excludeDeviceId"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	changes := make([]pullChange, 0, len(page.Changes))
	for _, c := range page.Changes {
		changes = append(changes, pullChange{
			TableName:      c.TableName,
			RowPKs:         c.RowPKs,
			ColumnName:     c.ColumnName,
			HLCTimestamp:   c.HLCTimestamp,
			DeviceID:       c.DeviceID,
			EncryptedValue: c.EncryptedValue,
			Nonce:          c.Nonce,
			UpdatedAt:      services.FormatServerTimestamp(c.UpdatedAt),
		})
	}

	resp := map[string]any{
		"changes": changes,
		"hasMore": page.HasMore,
	}
	if len(page.Changes) > 0 {
		resp["serverTimestamp"] = services.FormatServerTimestamp(page.LastUpdatedAt)
		resp["lastTableName"] = page.LastTableName
		resp["lastRowPks"] = page.LastRowPKs
	} else {
		resp["serverTimestamp"] = services.FormatServerTimestamp(timeNowUTC())
	}
	writeJSON(w, http.StatusOK, resp)
}
