package player

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"stemdeck/core/audio"
	"stemdeck/model"
)

// wavBytes builds an in-memory 16-bit stereo PCM WAV at the engine rate
// with every sample set to value.
func wavBytes(frames int, value int16) []byte {
	dataSize := frames * audio.ChannelCount * audio.BytesPerSample
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataSize))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(audio.ChannelCount))
	binary.Write(&b, binary.LittleEndian, uint32(audio.SampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(audio.SampleRate*audio.ChannelCount*audio.BytesPerSample))
	binary.Write(&b, binary.LittleEndian, uint16(audio.ChannelCount*audio.BytesPerSample))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataSize))
	for i := 0; i < frames*audio.ChannelCount; i++ {
		binary.Write(&b, binary.LittleEndian, value)
	}
	return b.Bytes()
}

// mapFetcher serves canned payloads by URL and counts fetches.
type mapFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  map[string]error
	calls map[string]int
	gate  chan struct{} // when set, every Fetch blocks until closed
}

func newMapFetcher() *mapFetcher {
	return &mapFetcher{
		files: make(map[string][]byte),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *mapFetcher) add(url string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[url] = payload
}

func (f *mapFetcher) failWith(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[url] = err
}

func (f *mapFetcher) clearFailure(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fail, url)
}

func (f *mapFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *mapFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls[url]++
	gate := f.gate
	err := f.fail[url]
	payload, ok := f.files[url]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no such resource %q", url)
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

// fakeSplitter returns canned children or a canned error, optionally
// blocking on a gate so tests can observe the in-flight window.
type fakeSplitter struct {
	mu       sync.Mutex
	children []model.ChildStem
	err      error
	gate     chan struct{}
	calls    int
}

func (s *fakeSplitter) Split(ctx context.Context, jobID, track string) ([]model.ChildStem, error) {
	s.mu.Lock()
	s.calls++
	gate := s.gate
	children, err := s.children, s.err
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return children, nil
}

func (s *fakeSplitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// newTestPlayer builds a player on a live render loop that is torn
// down with the test.
func newTestPlayer(t *testing.T, fetch Fetcher, split Splitter) *Player {
	t.Helper()
	actx := audio.NewContext()
	t.Cleanup(actx.Shutdown)
	return New(actx, fetch, split)
}

// waitFor polls cond until it holds or the timeout lapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// collectEvents subscribes a recorder and returns a snapshot getter.
func collectEvents(p *Player) func(EventType) []Event {
	var mu sync.Mutex
	var events []Event
	p.Subscribe(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	return func(kind EventType) []Event {
		mu.Lock()
		defer mu.Unlock()
		var out []Event
		for _, e := range events {
			if kind == "" || e.Type == kind {
				out = append(out, e)
			}
		}
		return out
	}
}
