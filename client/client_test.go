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

	"github.com/hmontero/waypoint-server/cmd/models"
)

func TestGetCurrentUser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/users/me", r.URL.Path)
		require.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":  "Ada",
			"email": "ada@example.com",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "token-123")
	user, err := c.GetCurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, "ada@example.com", user.Email)
}

func TestUpdateLocationSendsLatLng(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/users/me/location", r.URL.Path)

		var body map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 25.756365, body["lat"])
		assert.Equal(t, -80.375716, body["lng"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.User{
			Location: models.NewGeoPoint(body["lat"], body["lng"]),
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "token-123")
	user, err := c.UpdateLocation(context.Background(), 25.756365, -80.375716)
	require.NoError(t, err)
	require.NotNil(t, user.Location)
	assert.Equal(t, []float64{-80.375716, 25.756365}, user.Location.Coordinates)
}

func TestErrorsSurfaceAsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid updates!"})
	}))
	defer srv.Close()

	c := New(srv.URL, "token-123")
	user, err := c.GetCurrentUser(context.Background())
	require.Nil(t, user)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Invalid updates!", apiErr.Message)
}

func TestNonJSONErrorBodyFallsBackToStatusText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "You do not have permission to delete this resource.", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "token-123")
	_, err := c.GetCurrentUser(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, http.StatusText(http.StatusForbidden), apiErr.Message)
}
