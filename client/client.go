// Package client is a small HTTP facade over the user API. Every call
// returns (value, error): failures come back as a typed *APIError instead of
// being folded into the success value, so callers must handle both branches.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hmontero/waypoint-server/cmd/models"
)

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// APIError carries the HTTP status and the server's error message.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// GetCurrentUser fetches the authenticated user's own record.
func (c *Client) GetCurrentUser(ctx context.Context) (*models.User, error) {
	return c.doUser(ctx, http.MethodGet, "/api/users/me", nil)
}

// UpdateLocation submits a lat/lng pair. The server stores it in GeoJSON
// [lng, lat] order.
func (c *Client) UpdateLocation(ctx context.Context, lat, lng float64) (*models.User, error) {
	body := map[string]float64{
		"lat": lat,
		"lng": lng,
	}
	return c.doUser(ctx, http.MethodPut, "/api/users/me/location", body)
}

func (c *Client) doUser(ctx context.Context, method, path string, body interface{}) (*models.User, error) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}

	var user models.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}
