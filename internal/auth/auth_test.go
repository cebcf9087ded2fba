package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mediagate/internal/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "super-secret-jwt-token-with-at-least-32-characters"
	testAnon   = "anon-key"
)

func newRequest(t *testing.T, authorization string) *http.Request {
	t.Helper()
	req := httptest.NewRequestWithContext(t.Context(), http.MethodPost, "http://example.com/upload-media", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return req
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err, "signing test token")
	return token
}

func validClaims(sub string) auth.Claims {
	return auth.Claims{
		Email: sub + "@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{auth.DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

// newAuthServer fakes the Supabase GET /auth/v1/user endpoint. Tokens found in
// users resolve to that user ID; anything else gets a 401.
func newAuthServer(t *testing.T, users map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	calls := new(atomic.Int32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/auth/v1/user" || r.Header.Get("apikey") != testAnon {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		token, _ := auth.BearerToken(r)
		id, ok := users[token]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401,"msg":"invalid JWT"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "email": id + "@example.com", "role": "authenticated"})
	}))
	t.Cleanup(srv.Close)

	return srv, calls
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		token, ok := auth.BearerToken(newRequest(t, tc.header))
		require.Equalf(t, tc.ok, ok, "ok for %q", tc.header)
		require.Equalf(t, tc.token, token, "token for %q", tc.header)
	}
}

func TestJWTAuthEngine(t *testing.T) {
	t.Parallel()

	e := auth.NewJWTAuthEngine(testSecret)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		token := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims("u123"))
		user, err := e.AuthenticateRequest(t.Context(), newRequest(t, "Bearer "+token))
		require.NoError(t, err)
		require.NotNil(t, user, "expected user for valid token")
		require.Equal(t, "u123", user.ID)
		require.Equal(t, "u123@example.com", user.Email)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		token := signToken(t, "another-secret-another-secret-another", jwt.SigningMethodHS256, validClaims("u123"))
		user, err := e.AuthenticateRequest(t.Context(), newRequest(t, "Bearer "+token))
		require.NoError(t, err)
		require.Nil(t, user)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		claims := validClaims("u123")
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		user, err := e.AuthenticateRequest(t.Context(), newRequest(t, "Bearer "+signToken(t, testSecret, jwt.SigningMethodHS256, claims)))
		require.NoError(t, err)
		require.Nil(t, user)
	})

	t.Run("wrong audience", func(t *testing.T) {
		t.Parallel()
		claims := validClaims("u123")
		claims.Audience = jwt.ClaimStrings{"anon"}
		user, err := e.AuthenticateRequest(t.Context(), newRequest(t, "Bearer "+signToken(t, testSecret, jwt.SigningMethodHS256, claims)))
		require.NoError(t, err)
		require.Nil(t, user)
	})

	t.Run("other algorithm", func(t *testing.T) {
		t.Parallel()
		token := signToken(t, testSecret, jwt.SigningMethodHS512, validClaims("u123"))
		user, err := e.AuthenticateRequest(t.Context(), newRequest(t, "Bearer "+token))
		require.NoError(t, err)
		require.Nil(t, user)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		user, err := e.AuthenticateRequest(t.Context(), newRequest(t, "Bearer not.a.jwt"))
		require.NoError(t, err)
		require.Nil(t, user)
	})
}

func TestSupabaseAuthEngine(t *testing.T) {
	t.Parallel()

	srv, _ := newAuthServer(t, map[string]string{"good-token": "u123"})
	e := auth.NewSupabaseAuthEngine(srv.URL+"/", testAnon, srv.Client())

	user, err := e.AuthenticateRequest(t.Context(), newRequest(t, "Bearer good-token"))
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "u123", user.ID)

	user, err = e.AuthenticateRequest(t.Context(), newRequest(t, "Bearer bad-token"))
	require.NoError(t, err, "a rejected token is not a processing error")
	require.Nil(t, user)
}

func TestSupabaseAuthEngine_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	e := auth.NewSupabaseAuthEngine(srv.URL, testAnon, srv.Client())
	user, err := e.AuthenticateRequest(t.Context(), newRequest(t, "Bearer any"))
	require.Error(t, err)
	require.Nil(t, user)
}

func TestCompoundAuthEngine_PrefersLocalVerification(t *testing.T) {
	t.Parallel()

	srv, calls := newAuthServer(t, map[string]string{"opaque-token": "remote-user"})
	e := auth.NewCompoundAuthEngine(
		auth.NewJWTAuthEngine(testSecret),
		auth.NewSupabaseAuthEngine(srv.URL, testAnon, srv.Client()),
	)

	token := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims("local-user"))
	user, err := e.AuthenticateRequest(t.Context(), newRequest(t, "Bearer "+token))
	require.NoError(t, err)
	require.Equal(t, "local-user", user.ID)
	require.Zero(t, calls.Load(), "a locally verified token must not reach the auth server")

	user, err = e.AuthenticateRequest(t.Context(), newRequest(t, "Bearer opaque-token"))
	require.NoError(t, err)
	require.Equal(t, "remote-user", user.ID)
	require.EqualValues(t, 1, calls.Load())
}

type stubEngine struct {
	user *auth.User
	err  error
}

func (s stubEngine) AuthenticateRequest(context.Context, *http.Request) (*auth.User, error) {
	return s.user, s.err
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	_, err := auth.Authenticate(t.Context(), stubEngine{user: &auth.User{ID: "x"}}, newRequest(t, ""))
	require.ErrorIs(t, err, auth.ErrNoAuthorization)

	_, err = auth.Authenticate(t.Context(), stubEngine{}, newRequest(t, "Bearer t"))
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = auth.Authenticate(t.Context(), stubEngine{err: context.DeadlineExceeded}, newRequest(t, "Bearer t"))
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = auth.Authenticate(t.Context(), stubEngine{user: &auth.User{}}, newRequest(t, "Bearer t"))
	require.ErrorIs(t, err, auth.ErrUnauthorized, "a user without an ID is not a principal")

	user, err := auth.Authenticate(t.Context(), stubEngine{user: &auth.User{ID: "u1"}}, newRequest(t, "Bearer t"))
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
}
