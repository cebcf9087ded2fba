package core

import (
	"net/http"
	"strings"
)

// Handler returns an http.Handler serving the upload API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Method checks happen in the handler so that every method gets the
	// JSON error body.
	mux.HandleFunc("/upload-media", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleUploadMedia(ctx, w, r)
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleHealth(ctx, w, r)
	})

	if s.Config.Metrics != nil {
		mux.Handle("GET /metrics", s.Config.Metrics.Handler())
	}

	if s.Config.MediaRoot != "" {
		files := http.FileServer(http.Dir(s.Config.MediaRoot))
		mux.Handle("GET /media/", http.StripPrefix("/media", noDirectoryListing(files)))
	}

	// Add middleware
	handler := Recoverer(mux)
	handler = CORS(handler)
	handler = LogRequest(handler)
	return handler
}

func noDirectoryListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
