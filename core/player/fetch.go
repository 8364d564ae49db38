package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Fetcher retrieves the encoded audio resource behind a track URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPFetcher retrieves track resources over HTTP. Track URLs from a
// manifest are usually server-relative ("/api/stems/..."), so they are
// resolved against Base. Loads carry no deadline of their own; a hung
// fetch blocks only its own track.
type HTTPFetcher struct {
	Base   string
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher resolving relative URLs against base.
func NewHTTPFetcher(base string) *HTTPFetcher {
	return &HTTPFetcher{
		Base:   strings.TrimRight(base, "/"),
		Client: &http.Client{},
	}
}

// Fetch issues a GET for the resource. Any non-2xx status is a fetch
// failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	if !strings.Contains(url, "://") {
		if !strings.HasPrefix(url, "/") {
			url = "/" + url
		}
		url = f.Base + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}
