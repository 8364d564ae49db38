// Package cache keeps hot project state in Redis: the manifest of the
// most recent separations and the live playback snapshot. Every
// operation degrades to a cache miss when Redis is not configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stemdeck/model"
)

const (
	manifestKey = "stemdeck:manifest:%s" // String: manifest JSON by job id
	playbackKey = "stemdeck:playback:%s" // String: playback snapshot JSON by job id

	manifestTTL = 24 * time.Hour
	playbackTTL = time.Hour
)

// ProjectCache wraps the shared Redis handle. A nil client disables the
// cache without changing caller behavior.
type ProjectCache struct {
	client *redis.Client
}

// NewProjectCache creates the cache around an optional Redis client.
func NewProjectCache(client *redis.Client) *ProjectCache {
	return &ProjectCache{client: client}
}

// SetManifest stores a job's manifest.
func (c *ProjectCache) SetManifest(ctx context.Context, m *model.Manifest) error {
	if c == nil || c.client == nil || m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("cache: marshal manifest: %w", err)
	}
	return c.client.Set(ctx, fmt.Sprintf(manifestKey, m.JobID), data, manifestTTL).Err()
}

// GetManifest returns the cached manifest or nil on a miss.
func (c *ProjectCache) GetManifest(ctx context.Context, jobID string) (*model.Manifest, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, fmt.Sprintf(manifestKey, jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var m model.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cache: decode manifest: %w", err)
	}
	return &m, nil
}

// SetPlayback stores the engine's transport snapshot for a job.
func (c *ProjectCache) SetPlayback(ctx context.Context, snap *model.PlaybackSnapshot) error {
	if c == nil || c.client == nil || snap == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cache: marshal playback: %w", err)
	}
	return c.client.Set(ctx, fmt.Sprintf(playbackKey, snap.JobID), data, playbackTTL).Err()
}

// GetPlayback returns the cached playback snapshot or nil on a miss.
func (c *ProjectCache) GetPlayback(ctx context.Context, jobID string) (*model.PlaybackSnapshot, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, fmt.Sprintf(playbackKey, jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var snap model.PlaybackSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("cache: decode playback: %w", err)
	}
	return &snap, nil
}

// Invalidate drops every cached entry for a job.
func (c *ProjectCache) Invalidate(ctx context.Context, jobID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx,
		fmt.Sprintf(manifestKey, jobID),
		fmt.Sprintf(playbackKey, jobID),
	).Err()
}
