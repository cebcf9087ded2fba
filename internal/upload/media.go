package upload

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
)

// DefaultMaxSize is the largest accepted upload, 50 MiB.
const DefaultMaxSize int64 = 50 << 20

// DefaultFolder is used when the caller names no folder.
const DefaultFolder = "comments"

// Kind is the coarse media category reported back to clients.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// AllowedTypes maps every accepted MIME type to its media kind.
var AllowedTypes = map[string]Kind{
	"image/jpeg":      KindImage,
	"image/png":       KindImage,
	"image/gif":       KindImage,
	"image/webp":      KindImage,
	"video/mp4":       KindVideo,
	"video/webm":      KindVideo,
	"video/quicktime": KindVideo,
}

var (
	ErrMissingFile      = errors.New("no file provided")
	ErrUnsupportedType  = errors.New("file type not allowed")
	ErrTooLarge         = errors.New("file too large")
	ErrInvalidFolder    = errors.New("invalid folder")
	ErrInvalidPrincipal = errors.New("invalid principal id")
	ErrUploadFailed     = errors.New("upload failed")
)

// NormalizeContentType lowercases a MIME type and drops its parameters.
func NormalizeContentType(contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// KindOf reports the media kind of contentType, or false when the type is
// not accepted.
func KindOf(contentType string) (Kind, bool) {
	kind, ok := AllowedTypes[NormalizeContentType(contentType)]
	return kind, ok
}

// NormalizeFolder trims surrounding slashes and checks that every segment is
// a plain name. An empty folder becomes DefaultFolder.
func NormalizeFolder(folder string) (string, error) {
	if folder == "" {
		return DefaultFolder, nil
	}

	trimmed := strings.Trim(folder, "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFolder, folder)
	}

	for _, segment := range strings.Split(trimmed, "/") {
		if !validSegment(segment) {
			return "", fmt.Errorf("%w: %q", ErrInvalidFolder, folder)
		}
	}
	return trimmed, nil
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

const maxExtensionLen = 16

// Extension returns the lowercased text after the last dot of filename's
// base name, or "" when there is none or it is not alphanumeric.
func Extension(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	idx := strings.LastIndexByte(base, '.')
	if idx < 0 || idx == len(base)-1 {
		return ""
	}

	ext := strings.ToLower(base[idx+1:])
	if len(ext) > maxExtensionLen {
		return ""
	}
	for _, c := range ext {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}
