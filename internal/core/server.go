package core

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"mediagate/internal/auth"
	"mediagate/internal/storage"
	"mediagate/internal/upload"

	"github.com/dustin/go-humanize"
)

const (
	// multipartOverhead is the allowance for multipart framing and the
	// folder field on top of the file size limit.
	multipartOverhead = 1 << 20

	// maxMemory is how much of a multipart body is held in memory before
	// spilling to temporary files.
	maxMemory = 8 << 20
)

// Server exposes the media upload endpoint.
type Server struct {
	Config Config
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Uploader == nil {
		return nil, errors.New("uploader must not be nil")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("authenticator must not be nil")
	}
	return &Server{Config: cfg}, nil
}

func (s *Server) handleHealth(_ context.Context, w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleUploadMedia authenticates the caller, validates the multipart file
// and stores it. Authentication happens before the body is read.
func (s *Server) handleUploadMedia(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
		return
	}

	user, err := auth.Authenticate(ctx, s.Config.Authenticator, r)
	if err != nil {
		if errors.Is(err, auth.ErrNoAuthorization) {
			s.Config.Metrics.ObserveRejection("no_authorization")
			writeError(w, http.StatusUnauthorized, MsgNoAuthorization)
			return
		}
		slog.DebugContext(ctx, "Rejected upload token", slog.Any("error", err))
		s.Config.Metrics.ObserveRejection("unauthorized")
		writeError(w, http.StatusUnauthorized, MsgUnauthorized)
		return
	}

	maxSize := s.Config.Uploader.MaxSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	file, header, err := s.formFile(r)
	if err != nil {
		s.Config.Metrics.ObserveRejection(upload.RejectionReason(err))
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}
	defer file.Close()

	if token, ok := auth.BearerToken(r); ok {
		ctx = storage.WithBearerToken(ctx, token)
	}

	result, err := s.Config.Uploader.Upload(ctx, &upload.Request{
		PrincipalID: user.ID,
		Folder:      r.FormValue("folder"),
		File: &upload.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		},
	})
	if err != nil {
		status, message := errorStatus(err)
		if status >= http.StatusInternalServerError {
			slog.ErrorContext(ctx, "Upload failed", slog.String("user", user.ID), slog.Any("error", err))
		}
		writeError(w, status, message)
		return
	}

	slog.InfoContext(ctx, "Stored upload",
		slog.String("user", user.ID),
		slog.String("key", result.Key),
		slog.String("backend", result.Store),
		slog.String("size", humanize.IBytes(uint64(header.Size))))

	_ = writeJSON(w, http.StatusOK, UploadResponse{URL: result.URL, Type: string(result.Kind)})
}

// formFile parses the multipart body and returns the "file" part.
func (s *Server) formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, nil, upload.ErrTooLarge
		}
		return nil, nil, errors.Join(upload.ErrMissingFile, err)
	}

	// net/http removes the form's temporary files once the handler returns.
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.Join(upload.ErrMissingFile, err)
	}
	return file, header, nil
}

// errorStatus maps an upload error to its HTTP status and client message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, upload.ErrMissingFile):
		return http.StatusBadRequest, MsgNoFile
	case errors.Is(err, upload.ErrUnsupportedType):
		return http.StatusBadRequest, MsgTypeNotAllowed
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusBadRequest, MsgTooLarge
	case errors.Is(err, upload.ErrInvalidFolder):
		return http.StatusBadRequest, MsgInvalidFolder
	case errors.Is(err, upload.ErrUploadFailed):
		return http.StatusInternalServerError, MsgUploadFailed
	default:
		return http.StatusInternalServerError, MsgInternal
	}
}
