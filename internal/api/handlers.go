package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/office-hub/internal/auth"
	"github.com/terra-clan/office-hub/internal/ledger"
	"github.com/terra-clan/office-hub/internal/models"
	"github.com/terra-clan/office-hub/internal/roster"
	"github.com/terra-clan/office-hub/internal/storage"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondFieldError(w, status, code, message, "")
}

func respondFieldError(w http.ResponseWriter, status int, code, message, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
			Field:   field,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondServiceError maps domain errors to HTTP statuses. Rule violations
// are surfaced verbatim; anything unrecognised is logged and reported as
// "failed to <action>".
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var (
		violation *roster.ConstraintViolation
		invalid   *models.ValidationError
	)

	switch {
	case errors.Is(err, roster.ErrInvalidIdentifier):
		respondFieldError(w, http.StatusBadRequest, "invalid_identifier", err.Error(), "table_number")
	case errors.As(err, &violation):
		respondError(w, http.StatusConflict, "constraint_violation", violation.Error())
	case errors.As(err, &invalid):
		respondFieldError(w, http.StatusBadRequest, "validation_error", invalid.Message, invalid.Field)
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, storage.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, ledger.ErrForbidden):
		respondError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenRevoked):
		respondError(w, http.StatusUnauthorized, "invalid_token", err.Error())
	default:
		slog.Error("failed to "+action, "error", err, "path", r.URL.Path)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// Request helpers

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var invalid *models.ValidationError
		if errors.As(err, &invalid) {
			respondFieldError(w, http.StatusBadRequest, "validation_error", invalid.Message, invalid.Field)
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// decodeOptionalJSON accepts an empty body
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
	return false
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusNotFound, "not_found", "not found")
		return 0, false
	}
	return id, true
}

func pageFromQuery(r *http.Request) models.Page {
	q := r.URL.Query()
	var p models.Page
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		p.Number = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil {
		p.Size = v
	}
	return p.Normalize()
}

func optionalIntQuery(w http.ResponseWriter, r *http.Request, name string) (*int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		respondFieldError(w, http.StatusBadRequest, "validation_error", name+" must be a non-negative integer", name)
		return nil, false
	}
	return &v, true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if failures := s.health.CheckAll(r.Context()); len(failures) > 0 {
			for name, err := range failures {
				slog.Warn("dependency not ready", "dependency", name, "error", err)
			}
			respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
