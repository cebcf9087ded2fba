package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"mediagate/internal/signer"
)

// R2Config describes the Cloudflare R2 bucket uploads go to first.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string

	// Endpoint overrides https://{AccountID}.r2.cloudflarestorage.com.
	Endpoint string

	// PublicBaseURL, when set, is the r2.dev or custom domain objects are
	// served from. Otherwise the bucket's virtual-hosted URL is used.
	PublicBaseURL string
}

// EndpointURL returns the S3 API endpoint for the account.
func (c R2Config) EndpointURL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

// R2Storage uploads objects with a hand-signed SigV4 PUT. The payload is
// streamed, so requests carry UNSIGNED-PAYLOAD instead of a body hash.
type R2Storage struct {
	cfg      R2Config
	endpoint *url.URL
	signer   *signer.Signer
	client   *http.Client
}

// NewR2Storage validates cfg and returns an R2Storage that sends requests
// through client (http.DefaultClient when nil).
func NewR2Storage(cfg R2Config, client *http.Client) (*R2Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("r2: bucket must not be empty")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("r2: access key id and secret access key are required")
	}
	if cfg.AccountID == "" && cfg.Endpoint == "" {
		return nil, errors.New("r2: account id or endpoint is required")
	}

	endpoint, err := url.Parse(cfg.EndpointURL())
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("r2: invalid endpoint %q", cfg.EndpointURL())
	}

	if client == nil {
		client = http.DefaultClient
	}

	creds := signer.Credentials{AccessKeyID: cfg.AccessKeyID, SecretAccessKey: cfg.SecretAccessKey}
	return &R2Storage{
		cfg:      cfg,
		endpoint: endpoint,
		signer:   signer.New(creds, signer.RegionAuto),
		client:   client,
	}, nil
}

func (s *R2Storage) Name() string { return "r2" }

// PublicURL returns the URL an object stored under key is reachable at.
func (s *R2Storage) PublicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return joinURL(s.cfg.PublicBaseURL, key)
	}
	return fmt.Sprintf("https://%s.%s.r2.cloudflarestorage.com/%s", s.cfg.Bucket, s.cfg.AccountID, key)
}

func (s *R2Storage) PutObject(ctx context.Context, key string, contentType string, body io.Reader, size int64) (string, error) {
	target := s.endpoint.JoinPath(s.cfg.Bucket, key)

	// The client closes request bodies; callers may still need theirs for a
	// retry elsewhere.
	var reqBody io.Reader = http.NoBody
	if size > 0 {
		reqBody = io.NopCloser(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), reqBody)
	if err != nil {
		return "", fmt.Errorf("r2: build request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	s.signer.Sign(req, signer.UnsignedPayload)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("r2: put %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newStatusError(s.Name(), resp.StatusCode, resp.Body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return s.PublicURL(key), nil
}
