package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"mediagate/pkg/client"

	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	var (
		server      string
		token       string
		folder      string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload media files and print one JSON result per line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("MEDIAGATE_TOKEN")
			}
			if token == "" {
				return errors.New("an access token is required (--token or MEDIAGATE_TOKEN)")
			}

			files := make([]client.File, 0, len(args))
			for _, path := range args {
				f, err := openMedia(path)
				if err != nil {
					return err
				}
				defer f.Reader.(io.Closer).Close()
				files = append(files, f)
			}

			c := client.New(server, client.WithToken(token), client.WithConcurrency(concurrency))
			results, err := c.UploadMultipleMedia(cmd.Context(), files, folder)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, res := range results {
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&server, "server", "http://localhost:8000", "Base URL of the mediagate server")
	f.StringVar(&token, "token", "", "Access token (default $MEDIAGATE_TOKEN)")
	f.StringVar(&folder, "folder", "comments", "Destination folder")
	f.IntVar(&concurrency, "concurrency", 4, "Parallel uploads")

	return cmd
}

// openMedia opens path and guesses its content type from the extension, or
// from the leading bytes when the extension is unknown.
func openMedia(path string) (client.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return client.File{}, err
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		head := make([]byte, 512)
		n, err := io.ReadFull(f, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			f.Close()
			return client.File{}, fmt.Errorf("read %s: %w", path, err)
		}
		contentType = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return client.File{}, err
		}
	}

	return client.File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Reader:      f,
	}, nil
}
