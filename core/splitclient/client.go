// Package splitclient talks to a remote stem-splitting service over
// HTTP. It is the engine's split backend when secondary decomposition
// runs on another host instead of a local tool.
package splitclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"stemdeck/core/player"
	"stemdeck/core/separator"
	"stemdeck/logger"
	"stemdeck/model"
)

// maxResponseBytes caps how much of a split response is read.
const maxResponseBytes = 1 << 20

// Client issues split requests against a remote service exposing the
// split-vocals and split-drums endpoints. Requests carry no timeout of
// their own; cancellation comes from the caller's context.
type Client struct {
	base   string
	client *http.Client
}

// New returns a client for the service at base.
func New(base string) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{},
	}
}

// Split implements the engine's split backend. A non-2xx response is
// decoded as {error, note?} and surfaced verbatim.
func (c *Client) Split(ctx context.Context, jobID, trackName string) ([]model.ChildStem, error) {
	endpoint := fmt.Sprintf("%s/api/split-%s/%s", c.base, trackName, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, &player.SplitError{Message: err.Error()}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &player.SplitError{Message: fmt.Sprintf("split service unreachable: %v", err)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &player.SplitError{Message: fmt.Sprintf("reading split response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var fail struct {
			Error string `json:"error"`
			Note  string `json:"note"`
		}
		if err := json.Unmarshal(body, &fail); err != nil || fail.Error == "" {
			fail.Error = fmt.Sprintf("split service returned %s", resp.Status)
		}
		logger.Warn("split request rejected",
			logger.String("job", jobID),
			logger.String("track", trackName),
			logger.String("status", resp.Status))
		return nil, &player.SplitError{Message: fail.Error, Note: fail.Note}
	}

	var payload struct {
		ChildSplits map[string][]json.RawMessage `json:"child_splits"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &player.SplitError{Message: fmt.Sprintf("malformed split response: %v", err)}
	}

	entries := payload.ChildSplits[trackName]
	children := make([]model.ChildStem, 0, len(entries))
	for _, raw := range entries {
		child, err := decodeChild(raw, jobID, trackName)
		if err != nil {
			return nil, &player.SplitError{Message: fmt.Sprintf("malformed child entry: %v", err)}
		}
		children = append(children, child)
	}
	if len(children) == 0 {
		return nil, &player.SplitError{
			Message: fmt.Sprintf("split service returned no %s children", trackName),
		}
	}
	return children, nil
}

// decodeChild accepts both entry shapes the service produces: a full
// record, or a bare stem name with the resource path left implied.
func decodeChild(raw json.RawMessage, jobID, parent string) (model.ChildStem, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return model.ChildStem{
			Name:   name,
			URL:    separator.ChildURL(jobID, parent, name),
			Parent: parent,
		}, nil
	}
	var rec model.ChildStem
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ChildStem{}, err
	}
	if rec.Name == "" {
		return model.ChildStem{}, fmt.Errorf("child record without a name")
	}
	if rec.Parent == "" {
		rec.Parent = parent
	}
	if rec.URL == "" {
		rec.URL = separator.ChildURL(jobID, parent, rec.Name)
	}
	return rec, nil
}
