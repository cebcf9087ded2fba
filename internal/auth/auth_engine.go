package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	BearerPrefix = "Bearer "
)

var (
	ErrNoAuthorization = errors.New("no authorization header")
	ErrUnauthorized    = errors.New("unauthorized")
)

// User is the authenticated principal behind a request.
type User struct {
	ID    string
	Email string
	Role  string
}

type AuthEngine interface {

	// AuthenticateRequest inspects the given HTTP request for a valid bearer
	// token. If valid, it returns the User the token belongs to; otherwise, it
	// returns nil. An error is returned if there was an issue processing
	// the authentication.
	AuthenticateRequest(ctx context.Context, rq *http.Request) (*User, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len(BearerPrefix) || !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(BearerPrefix):])
	return token, token != ""
}

// Authenticate runs engine against r and folds its three outcomes into one
// error: ErrNoAuthorization when the header is absent, ErrUnauthorized when
// the token is rejected, nil with a user otherwise.
func Authenticate(ctx context.Context, engine AuthEngine, r *http.Request) (*User, error) {
	if r.Header.Get("Authorization") == "" {
		return nil, ErrNoAuthorization
	}

	user, err := engine.AuthenticateRequest(ctx, r)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	if user == nil || user.ID == "" {
		return nil, ErrUnauthorized
	}

	return user, nil
}
