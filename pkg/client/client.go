// Package client uploads media to a mediagate server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	uploadPath         = "/upload-media"
	defaultConcurrency = 4
	maxErrorBody       = 4 << 10
)

// MediaUpload is the server's answer to a successful upload.
type MediaUpload struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// File is a file to upload. ContentType must be one of the media types the
// server accepts.
type File struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// APIError is returned for any non-200 response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upload-media: %d %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	token       string
	concurrency int
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithToken sets the access token sent as a bearer token.
func WithToken(token string) Option {
	return func(cl *Client) {
		cl.token = token
	}
}

// WithConcurrency bounds the number of parallel uploads in
// UploadMultipleMedia.
func WithConcurrency(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.concurrency = n
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  http.DefaultClient,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadMedia uploads one file into folder, "comments" when empty. The body
// is streamed through a pipe rather than buffered.
func (c *Client) UploadMedia(ctx context.Context, file File, folder string) (*MediaUpload, error) {
	if file.Reader == nil {
		return nil, errors.New("upload-media: file has no content")
	}
	if folder == "" {
		folder = "comments"
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, file, folder))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload-media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var out MediaUpload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("upload-media: decode response: %w", err)
	}
	return &out, nil
}

// UploadMultipleMedia uploads files in parallel and returns the results in
// input order. The first failure cancels the remaining uploads.
func (c *Client) UploadMultipleMedia(ctx context.Context, files []File, folder string) ([]MediaUpload, error) {
	results := make([]MediaUpload, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, file := range files {
		g.Go(func() error {
			res, err := c.UploadMedia(ctx, file, folder)
			if err != nil {
				return fmt.Errorf("%s: %w", file.Name, err)
			}
			results[i] = *res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func writeForm(mw *multipart.Writer, file File, folder string) error {
	if err := mw.WriteField("folder", folder); err != nil {
		return err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	h.Set("Content-Type", file.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file.Reader); err != nil {
		return err
	}
	return mw.Close()
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
