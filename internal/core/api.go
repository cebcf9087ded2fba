package core

import (
	"encoding/json"
	"net/http"
)

// Error messages returned to clients.
const (
	MsgMethodNotAllowed = "Method not allowed"
	MsgNoAuthorization  = "No authorization header"
	MsgUnauthorized     = "Unauthorized"
	MsgNoFile           = "No file provided"
	MsgTypeNotAllowed   = "File type not allowed"
	MsgTooLarge         = "File too large"
	MsgInvalidFolder    = "Invalid folder"
	MsgUploadFailed     = "Upload failed"
	MsgInternal         = "Internal server error"
)

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, ErrorResponse{Error: message})
}
