package server

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"stemdeck/storage"
)

// storeFetcher resolves engine track URLs directly against the local
// store instead of looping back through HTTP.
type storeFetcher struct {
	store *storage.Store
}

func newStoreFetcher(store *storage.Store) *storeFetcher {
	return &storeFetcher{store: store}
}

// Fetch opens the file behind a stem URL.
func (f *storeFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	jobID, stemPath, ok := parseStemURL(rawURL)
	if !ok {
		return nil, fmt.Errorf("fetch: unrecognized track url %q", rawURL)
	}
	path, err := f.store.ResolveStem(jobID, stemPath)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// parseStemURL splits "/api/stems/{job}/{stem...}" into its parts,
// tolerating absolute URLs that point back at this server.
func parseStemURL(raw string) (jobID, stemPath string, ok bool) {
	p := raw
	if strings.Contains(p, "://") {
		parsed, err := url.Parse(p)
		if err != nil {
			return "", "", false
		}
		p = parsed.Path
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}

	const prefix = "/api/stems/"
	if !strings.HasPrefix(p, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(p, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
