package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// maxErrorBody bounds how much of a failed response body is kept for logs.
const maxErrorBody = 4 << 10

// ObjectStore is a backend that durably stores one object per key and can
// tell where the public copy lives.
type ObjectStore interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// PutObject streams size bytes from body to key and returns the object's
	// public URL.
	PutObject(ctx context.Context, key string, contentType string, body io.Reader, size int64) (string, error)
}

// StatusError reports a non-2xx answer from a storage backend.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Backend, e.StatusCode)
}

func newStatusError(backend string, status int, body io.Reader) *StatusError {
	b, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return &StatusError{
		Backend:    backend,
		StatusCode: status,
		Body:       strings.TrimSpace(string(b)),
	}
}

type bearerTokenKey struct{}

// WithBearerToken records the caller's access token on ctx so backends that
// act on the caller's behalf can forward it.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

func bearerTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(bearerTokenKey{}).(string)
	return token
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
