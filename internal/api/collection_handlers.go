package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/office-hub/internal/models"
)

// Collection handlers

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := models.CollectionFilters{
		Search:   q.Get("search"),
		Occasion: models.Occasion(q.Get("occasion")),
		Status:   models.CollectionStatus(q.Get("status")),
		OrderBy:  q.Get("ordering"),
		Page:     pageFromQuery(r),
	}

	if filters.Occasion != "" && !filters.Occasion.Valid() {
		respondFieldError(w, http.StatusBadRequest, "validation_error", "unknown occasion", "occasion")
		return
	}

	switch filters.Status {
	case models.CollectionAnyStatus, models.CollectionActive, models.CollectionCompleted:
	default:
		respondFieldError(w, http.StatusBadRequest, "validation_error", "status must be active or completed", "status")
		return
	}

	if raw := q.Get("author"); raw != "" {
		author, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondFieldError(w, http.StatusBadRequest, "validation_error", "author must be a user id", "author")
			return
		}
		filters.AuthorID = author
	}

	page, err := s.ledger.ListCollections(r.Context(), filters)
	if err != nil {
		respondServiceError(w, r, err, "list collections")
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req models.CollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	collection, err := s.ledger.CreateCollection(r.Context(), PrincipalFromContext(r.Context()), req)
	if err != nil {
		respondServiceError(w, r, err, "create collection")
		return
	}

	respondJSON(w, http.StatusCreated, collection)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	collection, err := s.ledger.GetCollection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err, "get collection")
		return
	}

	respondJSON(w, http.StatusOK, collection)
}

func (s *Server) handleUpdateCollection(w http.ResponseWriter, r *http.Request) {
	var req models.CollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	collection, err := s.ledger.UpdateCollection(r.Context(), PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, r, err, "update collection")
		return
	}

	respondJSON(w, http.StatusOK, collection)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteCollection(r.Context(), PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err, "delete collection")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "collection deleted",
	})
}

func (s *Server) handleSetCover(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		respondFieldError(w, http.StatusBadRequest, "validation_error", "expected a multipart upload", "cover_image")
		return
	}

	file, header, err := r.FormFile("cover_image")
	if err != nil {
		respondFieldError(w, http.StatusBadRequest, "validation_error", "cover_image file is required", "cover_image")
		return
	}
	defer file.Close()

	collection, err := s.ledger.SetCover(r.Context(), PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), header.Filename, file)
	if err != nil {
		respondServiceError(w, r, err, "set cover")
		return
	}

	respondJSON(w, http.StatusOK, collection)
}

// Payment handlers

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := models.PaymentFilters{
		CollectionID: q.Get("collection"),
		OrderBy:      q.Get("ordering"),
		Page:         pageFromQuery(r),
	}

	page, err := s.ledger.ListPayments(r.Context(), PrincipalFromContext(r.Context()), filters)
	if err != nil {
		respondServiceError(w, r, err, "list payments")
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	payment, err := s.ledger.RecordPayment(r.Context(), PrincipalFromContext(r.Context()), req)
	if err != nil {
		respondServiceError(w, r, err, "record payment")
		return
	}

	respondJSON(w, http.StatusCreated, payment)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := s.ledger.GetPayment(r.Context(), PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err, "get payment")
		return
	}

	respondJSON(w, http.StatusOK, payment)
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeletePayment(r.Context(), PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err, "delete payment")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "payment deleted",
	})
}
