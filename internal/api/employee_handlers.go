package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/office-hub/internal/models"
	"github.com/terra-clan/office-hub/internal/roster"
)

// Skill catalog

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.SkillCatalog)
}

// Employee handlers

func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	minDays, ok := optionalIntQuery(w, r, "min_experience")
	if !ok {
		return
	}
	maxDays, ok := optionalIntQuery(w, r, "max_experience")
	if !ok {
		return
	}
	before, after := roster.ExperienceFilters(minDays, maxDays, time.Now())

	filters := models.EmployeeFilters{
		Search:          q.Get("search"),
		Skill:           models.SkillCategory(q.Get("skill")),
		HiredOnOrBefore: before,
		HiredOnOrAfter:  after,
		Page:            pageFromQuery(r),
	}

	page, err := s.roster.ListEmployees(r.Context(), filters)
	if err != nil {
		respondServiceError(w, r, err, "list employees")
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEmployeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	employee, err := s.roster.CreateEmployee(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "create employee")
		return
	}

	respondJSON(w, http.StatusCreated, employee)
}

func (s *Server) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	employee, err := s.roster.GetEmployee(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get employee")
		return
	}

	respondJSON(w, http.StatusOK, employee)
}

func (s *Server) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	var req models.CreateEmployeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	employee, err := s.roster.UpdateEmployee(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, r, err, "update employee")
		return
	}

	respondJSON(w, http.StatusOK, employee)
}

func (s *Server) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	if err := s.roster.DeleteEmployee(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "delete employee")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "employee deleted",
	})
}

// Skills

func (s *Server) handleSetSkill(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	var req models.SetSkillRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	skill, err := s.roster.SetSkill(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, r, err, "set skill")
		return
	}

	respondJSON(w, http.StatusOK, skill)
}

func (s *Server) handleRemoveSkill(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	skill := models.SkillCategory(chi.URLParam(r, "skill"))
	if err := s.roster.RemoveSkill(r.Context(), id, skill); err != nil {
		respondServiceError(w, r, err, "remove skill")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "skill removed",
	})
}

// Images

func (s *Server) handleAddImage(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		respondFieldError(w, http.StatusBadRequest, "validation_error", "expected a multipart upload", "image")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondFieldError(w, http.StatusBadRequest, "validation_error", "image file is required", "image")
		return
	}
	defer file.Close()

	var order *int
	if raw := r.FormValue("order"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondFieldError(w, http.StatusBadRequest, "validation_error", "order must be a non-negative integer", "order")
			return
		}
		order = &v
	}

	img, err := s.roster.AddImage(r.Context(), id, header.Filename, file, order)
	if err != nil {
		respondServiceError(w, r, err, "upload image")
		return
	}

	respondJSON(w, http.StatusCreated, img)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	imageID, ok := int64Param(w, r, "imageID")
	if !ok {
		return
	}

	if err := s.roster.DeleteImage(r.Context(), id, imageID); err != nil {
		respondServiceError(w, r, err, "delete image")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "image deleted",
	})
}

// Workplace

func (s *Server) handleGetWorkplace(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	desk, err := s.roster.Workplace(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get workplace")
		return
	}

	respondJSON(w, http.StatusOK, desk)
}

func (s *Server) handleAssignWorkplace(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	var req models.AssignWorkplaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	desk, err := s.roster.AssignWorkplace(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, r, err, "assign workplace")
		return
	}

	respondJSON(w, http.StatusOK, desk)
}
