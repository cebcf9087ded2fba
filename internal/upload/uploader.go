// Package upload validates media uploads and stores them, trying the primary
// object store first and a fallback store once if that fails.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"mediagate/internal/metrics"
	"mediagate/internal/storage"

	"github.com/dustin/go-humanize"
)

// DefaultTimeout bounds each storage attempt.
const DefaultTimeout = 30 * time.Second

// File is an uploaded file as received from the client. Body must be
// rewindable so the fallback can resend it.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

type Request struct {
	PrincipalID string
	File        *File
	Folder      string
}

// Backend tells which store ended up holding the object.
type Backend string

const (
	BackendPrimary  Backend = "primary"
	BackendFallback Backend = "fallback"
)

type Result struct {
	Backend Backend
	Store   string
	URL     string
	Key     string
	Kind    Kind
}

// FailedError is returned when no backend accepted the object.
type FailedError struct {
	Key         string
	PrimaryErr  error
	FallbackErr error
}

func (e *FailedError) Error() string {
	if e.FallbackErr == nil {
		return fmt.Sprintf("upload %s failed: primary: %v", e.Key, e.PrimaryErr)
	}
	return fmt.Sprintf("upload %s failed: primary: %v; fallback: %v", e.Key, e.PrimaryErr, e.FallbackErr)
}

func (e *FailedError) Unwrap() []error {
	errs := []error{ErrUploadFailed, e.PrimaryErr}
	if e.FallbackErr != nil {
		errs = append(errs, e.FallbackErr)
	}
	return errs
}

type Uploader struct {
	primary  storage.ObjectStore
	fallback storage.ObjectStore

	maxSize         int64
	primaryTimeout  time.Duration
	fallbackTimeout time.Duration
	keys            KeyGenerator
	metrics         *metrics.Metrics
}

type Option func(*Uploader)

func WithMaxSize(size int64) Option {
	return func(u *Uploader) {
		if size > 0 {
			u.maxSize = size
		}
	}
}

func WithTimeouts(primary, fallback time.Duration) Option {
	return func(u *Uploader) {
		if primary > 0 {
			u.primaryTimeout = primary
		}
		if fallback > 0 {
			u.fallbackTimeout = fallback
		}
	}
}

func WithKeyGenerator(keys KeyGenerator) Option {
	return func(u *Uploader) {
		u.keys = keys
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Uploader) {
		u.metrics = m
	}
}

// New returns an Uploader writing to primary, and to fallback when primary
// fails. fallback may be nil.
func New(primary storage.ObjectStore, fallback storage.ObjectStore, opts ...Option) *Uploader {
	u := &Uploader{
		primary:         primary,
		fallback:        fallback,
		maxSize:         DefaultMaxSize,
		primaryTimeout:  DefaultTimeout,
		fallbackTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *Uploader) MaxSize() int64 { return u.maxSize }

// Validate checks req in order: file present, type allowed, size within the
// limit, folder well formed. It returns the media kind and the normalized
// folder.
func (u *Uploader) Validate(req *Request) (Kind, string, error) {
	if req.File == nil || req.File.Body == nil {
		return "", "", ErrMissingFile
	}

	kind, ok := KindOf(req.File.ContentType)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedType, req.File.ContentType)
	}

	if req.File.Size > u.maxSize {
		return "", "", fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.IBytes(uint64(req.File.Size)), humanize.IBytes(uint64(u.maxSize)))
	}

	folder, err := NormalizeFolder(req.Folder)
	if err != nil {
		return "", "", err
	}
	return kind, folder, nil
}

// Upload validates req and stores the file in exactly one backend.
func (u *Uploader) Upload(ctx context.Context, req *Request) (*Result, error) {
	kind, folder, err := u.Validate(req)
	if err != nil {
		u.metrics.ObserveRejection(RejectionReason(err))
		return nil, err
	}

	key, err := u.keys.ObjectKey(folder, req.PrincipalID, req.File.Name)
	if err != nil {
		return nil, err
	}

	contentType := NormalizeContentType(req.File.ContentType)
	u.metrics.ObserveBytes(req.File.Size)

	url, primaryErr := u.put(ctx, u.primary, u.primaryTimeout, key, contentType, req.File)
	if primaryErr == nil {
		return &Result{Backend: BackendPrimary, Store: u.primary.Name(), URL: url, Key: key, Kind: kind}, nil
	}

	logAttrs := []any{
		slog.String("key", key),
		slog.String("backend", u.primary.Name()),
		slog.Any("error", primaryErr),
	}
	var statusErr *storage.StatusError
	if errors.As(primaryErr, &statusErr) {
		logAttrs = append(logAttrs, slog.Int("status", statusErr.StatusCode), slog.String("body", statusErr.Body))
	}

	if u.fallback == nil {
		slog.ErrorContext(ctx, "Primary upload failed and no fallback is configured", logAttrs...)
		return nil, &FailedError{Key: key, PrimaryErr: primaryErr}
	}
	slog.WarnContext(ctx, "Primary upload failed, trying fallback", logAttrs...)
	u.metrics.ObserveFallback()

	if _, err := req.File.Body.Seek(0, io.SeekStart); err != nil {
		return nil, &FailedError{Key: key, PrimaryErr: primaryErr, FallbackErr: fmt.Errorf("rewind body: %w", err)}
	}

	url, fallbackErr := u.put(ctx, u.fallback, u.fallbackTimeout, key, contentType, req.File)
	if fallbackErr != nil {
		slog.ErrorContext(ctx, "Fallback upload failed",
			slog.String("key", key),
			slog.String("backend", u.fallback.Name()),
			slog.Any("error", fallbackErr))
		return nil, &FailedError{Key: key, PrimaryErr: primaryErr, FallbackErr: fallbackErr}
	}

	return &Result{Backend: BackendFallback, Store: u.fallback.Name(), URL: url, Key: key, Kind: kind}, nil
}

func (u *Uploader) put(ctx context.Context, store storage.ObjectStore, timeout time.Duration, key string, contentType string, file *File) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	url, err := store.PutObject(ctx, key, contentType, file.Body, file.Size)
	u.metrics.ObserveUpload(store.Name(), err, time.Since(start))
	return url, err
}

// RejectionReason names the validation failure err represents, for metrics.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingFile):
		return "missing_file"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrInvalidFolder):
		return "invalid_folder"
	default:
		return "other"
	}
}
