package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/office-hub/internal/models"
)

func writeEnvelope(w http.ResponseWriter, status int, data interface{}, errBody map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]interface{}{"success": status < 300}
	if data != nil {
		resp["data"] = data
	}
	if errBody != nil {
		resp["error"] = errBody
	}
	json.NewEncoder(w).Encode(resp)
}

func TestLoginStoresToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/token":
			var req models.TokenRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "petrov_ivan", req.Username)
			writeEnvelope(w, http.StatusOK, models.TokenPair{Access: "acc", Refresh: "ref"}, nil)
		case "/api/v1/skills":
			gotAuth = r.Header.Get("Authorization")
			writeEnvelope(w, http.StatusOK, models.SkillCatalog, nil)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	pair, err := c.Login(context.Background(), "petrov_ivan", "pw")
	require.NoError(t, err)
	assert.Equal(t, "ref", pair.Refresh)

	skills, err := c.ListSkills(context.Background())
	require.NoError(t, err)
	assert.Len(t, skills, len(models.SkillCatalog))
	assert.Equal(t, "Bearer acc", gotAuth)
}

func TestErrorsCarryCodeAndField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, nil, map[string]string{
			"code": "validation_error", "message": "amount exceeds remaining 40.00", "field": "amount",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithToken("acc"))
	_, err := c.Donate(context.Background(), "abc", models.Money(5000))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "validation_error", apiErr.Code)
	assert.Equal(t, "amount", apiErr.Field)
	assert.Equal(t, "amount exceeds remaining 40.00", apiErr.Message)
}

func TestListQueryParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v1/collections", r.URL.Path)
		assert.Equal(t, "active", q.Get("status"))
		assert.Equal(t, "birthday", q.Get("occasion"))
		assert.Equal(t, "-current_amount", q.Get("ordering"))
		assert.Equal(t, "2", q.Get("page"))
		writeEnvelope(w, http.StatusOK, models.PageResult[models.CollectionView]{Count: 11, Page: 2, Size: 10}, nil)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	page, err := c.ListCollections(context.Background(), CollectionListOptions{
		ListOptions: ListOptions{Page: 2},
		Occasion:    models.OccasionBirthday,
		Status:      models.CollectionActive,
		Ordering:    "-current_amount",
	})
	require.NoError(t, err)
	assert.Equal(t, 11, page.Count)
}

func TestDeskOccupancyPaths(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		writeEnvelope(w, http.StatusOK, models.PageResult[models.Desk]{}, nil)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	for _, occ := range []models.DeskOccupancy{models.DeskAny, models.DeskFree, models.DeskOccupied} {
		_, err := c.ListDesks(context.Background(), occ, ListOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"/api/v1/desks", "/api/v1/desks/free", "/api/v1/desks/occupied"}, paths)
}
