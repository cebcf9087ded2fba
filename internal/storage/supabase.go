package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SupabaseConfig describes the Supabase Storage bucket used as the fallback.
type SupabaseConfig struct {
	URL    string
	Bucket string

	// APIKey is the project key sent as the gateway "apikey" header.
	APIKey string

	// ServiceKey, when set, authorizes uploads regardless of row-level
	// security. Without it the caller's own token is forwarded.
	ServiceKey string

	CacheControl string
}

// SupabaseStorage uploads through the Supabase Storage object API.
type SupabaseStorage struct {
	cfg    SupabaseConfig
	client *http.Client
}

func NewSupabaseStorage(cfg SupabaseConfig, client *http.Client) (*SupabaseStorage, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, errors.New("supabase storage: url and bucket are required")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = cfg.ServiceKey
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "max-age=3600"
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	if client == nil {
		client = http.DefaultClient
	}
	return &SupabaseStorage{cfg: cfg, client: client}, nil
}

func (s *SupabaseStorage) Name() string { return "supabase" }

// PublicURL follows the Supabase convention for objects in a public bucket.
func (s *SupabaseStorage) PublicURL(key string) string {
	return joinURL(s.cfg.URL, "storage/v1/object/public", s.cfg.Bucket, key)
}

func (s *SupabaseStorage) PutObject(ctx context.Context, key string, contentType string, body io.Reader, size int64) (string, error) {
	token := s.cfg.ServiceKey
	if token == "" {
		token = bearerTokenFrom(ctx)
	}
	if token == "" {
		return "", errors.New("supabase storage: no credentials for upload")
	}

	var reqBody io.Reader = http.NoBody
	if size > 0 {
		reqBody = io.NopCloser(body)
	}

	target := joinURL(s.cfg.URL, "storage/v1/object", s.cfg.Bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, reqBody)
	if err != nil {
		return "", fmt.Errorf("supabase storage: build request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", s.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", s.cfg.CacheControl)
	req.Header.Set("X-Upsert", "false")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("supabase storage: upload %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newStatusError(s.Name(), resp.StatusCode, resp.Body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return s.PublicURL(key), nil
}
