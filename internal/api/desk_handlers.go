package api

import (
	"net/http"

	"github.com/terra-clan/office-hub/internal/models"
)

func (s *Server) listDesks(w http.ResponseWriter, r *http.Request, occupancy models.DeskOccupancy) {
	filters := models.DeskFilters{
		Search:    r.URL.Query().Get("search"),
		Occupancy: occupancy,
		Page:      pageFromQuery(r),
	}

	page, err := s.roster.ListDesks(r.Context(), filters)
	if err != nil {
		respondServiceError(w, r, err, "list desks")
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleListDesks(w http.ResponseWriter, r *http.Request) {
	s.listDesks(w, r, models.DeskAny)
}

func (s *Server) handleListFreeDesks(w http.ResponseWriter, r *http.Request) {
	s.listDesks(w, r, models.DeskFree)
}

func (s *Server) handleListOccupiedDesks(w http.ResponseWriter, r *http.Request) {
	s.listDesks(w, r, models.DeskOccupied)
}

func (s *Server) handleCreateDesk(w http.ResponseWriter, r *http.Request) {
	var req models.DeskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	desk, err := s.roster.CreateDesk(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "create desk")
		return
	}

	respondJSON(w, http.StatusCreated, desk)
}

func (s *Server) handleGetDesk(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	desk, err := s.roster.GetDesk(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get desk")
		return
	}

	respondJSON(w, http.StatusOK, desk)
}

func (s *Server) handleUpdateDesk(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	var req models.DeskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	desk, err := s.roster.UpdateDesk(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, r, err, "update desk")
		return
	}

	respondJSON(w, http.StatusOK, desk)
}

func (s *Server) handleDeleteDesk(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	if err := s.roster.DeleteDesk(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "delete desk")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "desk deleted",
	})
}
