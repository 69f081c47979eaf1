// Package source retrieves the raw problem document from a URL or a local
// file and watches local files for changes.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/Cartooli/math-boredgames-sub001/internal/apperr"
)

// MaxDocumentSize bounds a fetched document. Inline images make exports
// large, but anything beyond this is not a problem list.
const MaxDocumentSize = 64 << 20

// HTTP fetches the document with GET.
type HTTP struct {
	url    string
	client *http.Client
}

// NewHTTP validates rawURL and builds a fetcher with the given timeout.
func NewHTTP(rawURL string, timeout time.Duration) (*HTTP, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("source: %w: invalid URL: %v", apperr.ErrInvalidArgument, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("source: %w: unsupported scheme %q (only http/https)", apperr.ErrInvalidArgument, parsed.Scheme)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{
		url: rawURL,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects (max 5)")
				}
				return nil
			},
		},
	}, nil
}

// Fetch downloads the document. Transport errors, non-2xx responses and
// oversized bodies all wrap apperr.ErrFetch.
func (h *HTTP) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("source: %w: %v", apperr.ErrFetch, err)
	}
	req.Header.Set("Accept", "text/markdown, text/plain;q=0.9, */*;q=0.1")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: %w: %v", apperr.ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("source: %w: HTTP %d", apperr.ErrFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("source: %w: read body: %v", apperr.ErrFetch, err)
	}
	if len(data) > MaxDocumentSize {
		return nil, fmt.Errorf("source: %w: document exceeds %d bytes", apperr.ErrFetch, MaxDocumentSize)
	}
	return data, nil
}

// String returns the URL.
func (h *HTTP) String() string { return h.url }

// File reads the document from disk on every fetch.
type File struct {
	path string
}

// NewFile returns a fetcher for path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Fetch(_ context.Context) ([]byte, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("source: %w: %v", apperr.ErrFetch, err)
	}
	if info.Size() > MaxDocumentSize {
		return nil, fmt.Errorf("source: %w: %s exceeds %d bytes", apperr.ErrFetch, f.path, MaxDocumentSize)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("source: %w: %v", apperr.ErrFetch, err)
	}
	return data, nil
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

func (f *File) String() string { return f.path }
