package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for object keys that would resolve outside the
// bucket directory.
var ErrInvalidKey = errors.New("invalid object key")

// LocalFileStorage stores objects on the local filesystem, one directory per
// bucket under dataDir. It is meant for development, where neither R2 nor
// Supabase is reachable.
type LocalFileStorage struct {
	dataDir       string
	bucket        string
	publicBaseURL string
}

// NewLocalFileStorage creates a LocalFileStorage rooted at dataDir. Public
// URLs are built as {publicBaseURL}/{bucket}/{key}.
func NewLocalFileStorage(dataDir string, bucket string, publicBaseURL string) *LocalFileStorage {
	return &LocalFileStorage{
		dataDir:       dataDir,
		bucket:        bucket,
		publicBaseURL: publicBaseURL,
	}
}

// ObjectPath computes the filesystem path for key within bucket.
func ObjectPath(directory string, bucket string, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("%w: bucket %q", ErrInvalidKey, bucket)
	}
	if key == "" || filepath.IsAbs(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	root := filepath.Join(directory, bucket)
	objPath := filepath.Join(root, filepath.FromSlash(key))

	rel, err := filepath.Rel(root, objPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return objPath, nil
}

func (s *LocalFileStorage) Name() string { return "local" }

// Root is the directory objects are written under, one subdirectory per
// bucket.
func (s *LocalFileStorage) Root() string { return s.dataDir }

func (s *LocalFileStorage) PublicURL(key string) string {
	return joinURL(s.publicBaseURL, s.bucket, key)
}

// PutObject writes body to a temporary file next to its destination and
// moves it into place once complete, so readers never see partial objects.
func (s *LocalFileStorage) PutObject(ctx context.Context, key string, contentType string, body io.Reader, size int64) (string, error) {
	objPath, err := ObjectPath(s.dataDir, s.bucket, key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(objPath), ".upload-*")
	if err != nil {
		return "", err
	}
	tempPath := tmp.Name()
	defer os.Remove(tempPath)

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("local storage: write %s: %w", key, err)
	}
	if size >= 0 && n != size {
		return "", fmt.Errorf("local storage: wrote %d bytes for %s, expected %d", n, key, size)
	}

	if err := MoveFile(tempPath, objPath); err != nil {
		return "", err
	}

	return s.PublicURL(key), nil
}

// GetObject reads back the object stored under key.
func (s *LocalFileStorage) GetObject(key string) ([]byte, error) {
	objPath, err := ObjectPath(s.dataDir, s.bucket, key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(objPath)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
