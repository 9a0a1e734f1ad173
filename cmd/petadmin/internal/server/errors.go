package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/iamerr"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/services/iam"
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the iamerr taxonomy onto HTTP status codes. Anything
// unrecognised is logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if p, ok := iamerr.AsProvisioning(err); ok {
		logger.WarnContext(r.Context(), "provisioning failed", "user_id", p.UserID, "rule", p.Rule, "error", p.Err)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: p.Error()})
		return
	}
	if v, ok := iamerr.AsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: v.Message, Field: v.Field})
		return
	}

	switch {
	case iamerr.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case iamerr.IsConflict(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, iam.ErrUserDisabled):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error()})
	default:
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return iamerr.Invalid("", "invalid request body: %v", err)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints where the body may be empty.
func decodeOptionalJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return iamerr.Invalid("", "invalid request body: %v", err)
	}
	return nil
}
