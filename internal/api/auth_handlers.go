package api

import (
	"net/http"

	"github.com/terra-clan/office-hub/internal/models"
)

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req models.TokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "username and password are required")
		return
	}

	pair, err := s.auth.Login(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "issue token")
		return
	}

	respondJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Refresh == "" {
		respondFieldError(w, http.StatusBadRequest, "validation_error", "refresh token is required", "refresh")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.Refresh)
	if err != nil {
		respondServiceError(w, r, err, "refresh token")
		return
	}

	respondJSON(w, http.StatusOK, pair)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	if err := s.auth.SignOut(r.Context(), PrincipalFromContext(r.Context()), req.Refresh); err != nil {
		respondServiceError(w, r, err, "sign out")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "signed out",
	})
}
