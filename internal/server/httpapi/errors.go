package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haexhub/haex-sync/internal/common"
	"github.com/haexhub/haex-sync/internal/server/services"
)

// errorEnvelope is the JSON error body. Extra carries structured
// diagnostics such as batch validation details.
type errorEnvelope struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}

// batchErrorBody mirrors the push validation contract: the offending
// batch id plus whichever diagnostics apply.
type batchErrorBody struct {
	Error            string `json:"error"`
	BatchID          string `json:"batchId"`
	MissingSequences []int  `json:"missingSequences,omitempty"`
	Expected         int    `json:"expected,omitempty"`
	Received         int    `json:"received,omitempty"`
}

// writeServiceError maps sentinel errors to the status table. Unknown
// errors become 500 with a short message; the caller logs the detail.
func writeServiceError(w http.ResponseWriter, err error) {
	var bve *services.BatchValidationError
	switch {
	case errors.As(err, &bve):
		writeJSON(w, http.StatusBadRequest, batchErrorBody{
			Error:            bve.Message,
			BatchID:          bve.BatchID,
			MissingSequences: bve.MissingSequences,
			Expected:         bve.Expected,
			Received:         bve.Received,
		})
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrorAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusBadRequest, "validation error")
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, common.ErrorForbidden), errors.Is(err, common.ErrBucketMismatch):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, common.ErrStorageNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
	case errors.Is(err, common.ErrEncryptionKeyMissing):
		writeError(w, http.StatusServiceUnavailable, "credential service is not configured")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
