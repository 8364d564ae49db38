package player

import (
	"context"
	"sync"
	"time"

	"stemdeck/core/audio"
	"stemdeck/logger"
	"stemdeck/model"
)

// BufferCache loads and memoizes decoded audio per track name. An
// entry, once decoded, lives for the whole engine session and is never
// refetched. Concurrent loads for the same uncached name share a
// single in-flight fetch. A failed load does not poison the cache: the
// entry is cleared so a later attempt retries from scratch.
type BufferCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry

	fetch Fetcher

	// onDecode reports each successful decode's duration so the
	// transport can extend its known total duration.
	onDecode func(time.Duration)
}

type cacheEntry struct {
	ready chan struct{}
	buf   *audio.Buffer
	err   error
}

// NewBufferCache returns an empty cache backed by fetch.
func NewBufferCache(fetch Fetcher, onDecode func(time.Duration)) *BufferCache {
	return &BufferCache{
		entries:  make(map[string]*cacheEntry),
		fetch:    fetch,
		onDecode: onDecode,
	}
}

// Load returns the decoded buffer for a track, fetching and decoding on
// first use. Callers arriving while a load is in flight wait for it and
// share its outcome.
func (c *BufferCache) Load(ctx context.Context, track model.Track) (*audio.Buffer, error) {
	c.mu.Lock()
	if e, ok := c.entries[track.Name]; ok {
		c.mu.Unlock()
		<-e.ready
		return e.buf, e.err
	}
	e := &cacheEntry{ready: make(chan struct{})}
	c.entries[track.Name] = e
	c.mu.Unlock()

	buf, err := c.loadOnce(ctx, track)

	c.mu.Lock()
	if err != nil {
		// Clear the slot so the next attempt retries.
		delete(c.entries, track.Name)
		e.err = err
	} else {
		e.buf = buf
	}
	c.mu.Unlock()
	close(e.ready)

	if err == nil && c.onDecode != nil {
		c.onDecode(buf.Duration())
	}
	return e.buf, e.err
}

func (c *BufferCache) loadOnce(ctx context.Context, track model.Track) (*audio.Buffer, error) {
	body, err := c.fetch.Fetch(ctx, track.URL)
	if err != nil {
		return nil, &LoadError{Track: track.Name, Stage: StageFetch, Err: err}
	}
	defer body.Close()

	buf, err := audio.Decode(body, track.URL)
	if err != nil {
		return nil, &LoadError{Track: track.Name, Stage: StageDecode, Err: err}
	}
	logger.Debug("track decoded",
		logger.String("track", track.Name),
		logger.Duration("duration", buf.Duration()))
	return buf, nil
}

// LoadResult is one track's outcome from LoadAll.
type LoadResult struct {
	Track  model.Track
	Buffer *audio.Buffer
	Err    error
}

// LoadAll loads every track concurrently and waits for all outcomes,
// success or failure. Results keep the input order.
func (c *BufferCache) LoadAll(ctx context.Context, tracks []model.Track) []LoadResult {
	results := make([]LoadResult, len(tracks))
	var wg sync.WaitGroup
	for i, t := range tracks {
		wg.Add(1)
		go func(i int, t model.Track) {
			defer wg.Done()
			buf, err := c.Load(ctx, t)
			results[i] = LoadResult{Track: t, Buffer: buf, Err: err}
		}(i, t)
	}
	wg.Wait()
	return results
}
