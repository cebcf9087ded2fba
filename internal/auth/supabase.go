package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SupabaseAuthEngine resolves bearer tokens by asking the Supabase auth
// server who they belong to (GET /auth/v1/user).
type SupabaseAuthEngine struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewSupabaseAuthEngine creates a SupabaseAuthEngine for the project at
// baseURL, authenticating to the gateway with the anon key.
func NewSupabaseAuthEngine(baseURL string, apiKey string, client *http.Client) *SupabaseAuthEngine {
	if client == nil {
		client = http.DefaultClient
	}
	return &SupabaseAuthEngine{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  client,
	}
}

type supabaseUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AuthenticateRequest returns the user owning the request's bearer token, or
// nil if the auth server rejects it.
func (e *SupabaseAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Authorization", BearerPrefix+token)
	req.Header.Set("apikey", e.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("auth server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var u supabaseUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode auth user: %w", err)
	}
	if u.ID == "" {
		return nil, nil
	}

	return &User{ID: u.ID, Email: u.Email, Role: u.Role}, nil
}
