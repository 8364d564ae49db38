// Package player implements the synchronized multi-track playback
// engine: a play/pause/seek transport over a set of named tracks, a
// memoizing buffer cache, a solo/mute/volume gain stage, and the glue
// that routes split requests to an external decomposition backend.
package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"stemdeck/core/audio"
	"stemdeck/logger"
	"stemdeck/model"
)

// tickInterval paces the periodic playhead updates while playing.
const tickInterval = 100 * time.Millisecond

// Player is the transport state machine. All state mutation is
// serialized under one mutex; sample-level work happens only in the
// audio context's render loop, which the player merely starts, stops
// and parameterizes. Exactly one transport operation may be in flight
// at a time: operations entered while another is mid-flight fail with
// ErrTransportBusy.
type Player struct {
	actx     *audio.Context
	fetch    Fetcher
	splitter Splitter

	mu     sync.Mutex
	jobID  string
	tracks []model.Track
	cache  *BufferCache
	gains  *GainStage

	// Transport clock. Exactly one of clockBaseline or pausedOffset is
	// authoritative at a time, selected by playing.
	playing       bool
	clockBaseline time.Time
	pausedOffset  time.Duration
	duration      time.Duration

	handles map[string]*audio.Handle
	busy    bool
	run     uint64 // playback-run generation, guards stale callbacks

	splitting map[string]bool

	listenersMu sync.RWMutex
	listeners   []EventFunc
}

// New wires a player to its audio context, resource fetcher and split
// backend. splitter may be nil when no split backend is configured.
func New(actx *audio.Context, fetch Fetcher, splitter Splitter) *Player {
	p := &Player{
		actx:      actx,
		fetch:     fetch,
		splitter:  splitter,
		gains:     NewGainStage(),
		handles:   make(map[string]*audio.Handle),
		splitting: make(map[string]bool),
	}
	p.cache = p.newCache()
	return p
}

func (p *Player) newCache() *BufferCache {
	var c *BufferCache
	c = NewBufferCache(p.fetch, func(d time.Duration) {
		p.extendDuration(c, d)
	})
	return c
}

// extendDuration grows the known total duration when a buffer decodes.
// Loads finishing after a session switch are ignored.
func (p *Player) extendDuration(from *BufferCache, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cache != from {
		return
	}
	if d > p.duration {
		p.duration = d
	}
}

// Subscribe registers an event observer.
func (p *Player) Subscribe(fn EventFunc) {
	p.listenersMu.Lock()
	p.listeners = append(p.listeners, fn)
	p.listenersMu.Unlock()
}

func (p *Player) publish(evts ...Event) {
	p.listenersMu.RLock()
	fns := make([]EventFunc, len(p.listeners))
	copy(fns, p.listeners)
	p.listenersMu.RUnlock()
	for _, e := range evts {
		for _, fn := range fns {
			fn(e)
		}
	}
}

// LoadProject replaces the active track set, starting a fresh engine
// session: playback stops, the buffer cache and gain stage are rebuilt,
// and the clock rewinds to zero.
func (p *Player) LoadProject(jobID string, tracks []model.Track) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrTransportBusy
	}
	p.stopRunLocked()
	p.jobID = jobID
	p.tracks = append([]model.Track(nil), tracks...)
	p.cache = p.newCache()
	p.gains = NewGainStage()
	for _, t := range p.tracks {
		p.gains.Register(t)
	}
	p.duration = 0
	p.pausedOffset = 0
	p.splitting = make(map[string]bool)
	evts := []Event{p.tracksEventLocked(), p.stateEventLocked()}
	p.mu.Unlock()

	logger.Info("project loaded",
		logger.String("job", jobID),
		logger.Int("tracks", len(tracks)))
	p.publish(evts...)
	return nil
}

// Play starts playback of every loadable track from the paused offset.
// If already playing it first performs the full stop sequence, so a
// restart is always "stop everything, then start everything fresh".
// All buffer loads are issued concurrently and starting is deferred
// until every one has resolved; tracks whose load failed are skipped
// for this run only. With zero started tracks, Play aborts with
// ErrNoPlayableTracks and the transport stays Stopped.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrTransportBusy
	}
	p.busy = true
	p.mu.Unlock()

	evts, err := p.playCore(ctx)

	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
	p.publish(evts...)
	return err
}

// playCore runs the start sequence. The caller holds the busy flag.
func (p *Player) playCore(ctx context.Context) ([]Event, error) {
	p.mu.Lock()
	if p.playing {
		p.stopRunLocked()
	}
	offset := p.pausedOffset
	tracks := append([]model.Track(nil), p.tracks...)
	cache := p.cache
	p.mu.Unlock()

	results := cache.LoadAll(ctx, tracks)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.run++
	run := p.run
	started := 0
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("track skipped for this run",
				logger.String("track", r.Track.Name),
				logger.ErrorField(r.Err))
			continue
		}
		name := r.Track.Name
		gain := p.gains.Control(name)
		h := p.actx.NewHandle(r.Buffer, offset, gain, func() {
			p.handleDone(run, name)
		})
		p.handles[name] = h
		started++
	}
	if started == 0 {
		p.handles = make(map[string]*audio.Handle)
		return nil, ErrNoPlayableTracks
	}

	p.clockBaseline = time.Now().Add(-offset)
	p.playing = true
	for _, h := range p.handles {
		h.Start()
	}
	go p.tickLoop(run)

	logger.Info("playback started",
		logger.String("job", p.jobID),
		logger.Int("tracks", started),
		logger.Duration("offset", offset))
	return []Event{p.stateEventLocked()}, nil
}

// Pause quiesces every live handle, records the playhead, and moves to
// Stopped. Gain controls persist untouched. Pausing while stopped is a
// no-op.
func (p *Player) Pause() error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrTransportBusy
	}
	if !p.playing {
		p.mu.Unlock()
		return nil
	}
	p.stopRunLocked()
	evt := p.stateEventLocked()
	p.mu.Unlock()

	p.publish(evt)
	return nil
}

// Seek moves the playhead to target, clamped to [0, duration]. While
// playing, every track is stopped and restarted at the new offset; the
// busy flag spans the whole stop-and-restart so nothing interleaves.
func (p *Player) Seek(ctx context.Context, target time.Duration) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrTransportBusy
	}
	clamped := clampDuration(target, 0, p.duration)
	if !p.playing {
		p.pausedOffset = clamped
		evts := []Event{p.timeEventLocked(), p.stateEventLocked()}
		p.mu.Unlock()
		p.publish(evts...)
		return nil
	}
	p.busy = true
	p.stopRunLocked()
	p.pausedOffset = clamped
	p.mu.Unlock()

	evts, err := p.playCore(ctx)

	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
	p.publish(evts...)
	return err
}

// stopRunLocked is the full stop sequence: stop and drop every live
// handle, record the playhead into pausedOffset, and invalidate the
// run so stale ticks and completion callbacks fall dead.
func (p *Player) stopRunLocked() {
	for _, h := range p.handles {
		h.Stop()
	}
	p.handles = make(map[string]*audio.Handle)
	if p.playing {
		pos := time.Since(p.clockBaseline)
		if pos < 0 {
			pos = 0
		}
		p.pausedOffset = pos
		p.playing = false
	}
	p.run++
}

// handleDone runs when a track's handle reaches its natural end. Once
// the live set drains, the run is finished: the playhead lands exactly
// on the total duration and the transport returns to Stopped.
func (p *Player) handleDone(run uint64, name string) {
	p.mu.Lock()
	if run != p.run || !p.playing {
		p.mu.Unlock()
		return
	}
	delete(p.handles, name)
	if len(p.handles) > 0 {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.pausedOffset = p.duration
	p.run++
	evts := []Event{p.timeEventLocked(), p.stateEventLocked()}
	p.mu.Unlock()

	logger.Info("playback finished", logger.String("job", p.jobID))
	p.publish(evts...)
}

// tickLoop publishes the playhead once per tick while this run plays.
func (p *Player) tickLoop(run uint64) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for range ticker.C {
		p.mu.Lock()
		if run != p.run || !p.playing {
			p.mu.Unlock()
			return
		}
		evt := p.timeEventLocked()
		p.mu.Unlock()
		p.publish(evt)
	}
}

// positionLocked reports the playhead: clock-derived while playing,
// the recorded offset while stopped, never negative.
func (p *Player) positionLocked() time.Duration {
	if p.playing {
		pos := time.Since(p.clockBaseline)
		if pos < 0 {
			pos = 0
		}
		return pos
	}
	return p.pausedOffset
}

// Position returns the current playhead.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

// Duration returns the engine's known total duration: the maximum
// across all successfully decoded buffers.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Playing reports whether the transport is in the Playing state.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// JobID returns the loaded project's job id.
func (p *Player) JobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobID
}

// State returns the transport snapshot.
func (p *Player) State() StateData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateDataLocked()
}

// Tracks returns the active set with current gain state merged in.
func (p *Player) Tracks() []model.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gains.Merge(p.tracks)
}

// Hierarchy returns the grouped view of the active set.
func (p *Player) Hierarchy() Hierarchy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return BuildHierarchy(p.gains.Merge(p.tracks))
}

// SetVolume sets a track's volume (clamped to [0, 1]) with immediate
// audible effect.
func (p *Player) SetVolume(name string, v float64) error {
	if err := p.gains.SetVolume(name, v); err != nil {
		return err
	}
	p.publishTracks()
	return nil
}

// ToggleMute flips a track's mute flag. Returns the new flag.
func (p *Player) ToggleMute(name string) (bool, error) {
	muted, err := p.gains.ToggleMute(name)
	if err != nil {
		return false, err
	}
	p.publishTracks()
	return muted, nil
}

// ToggleSolo flips a track's solo flag, recomputing every track's
// effective gain. Returns the new flag.
func (p *Player) ToggleSolo(name string) (bool, error) {
	soloed, err := p.gains.ToggleSolo(name)
	if err != nil {
		return false, err
	}
	p.publishTracks()
	return soloed, nil
}

func (p *Player) publishTracks() {
	p.mu.Lock()
	evt := p.tracksEventLocked()
	p.mu.Unlock()
	p.publish(evt)
}

// RequestSplit asks the split backend to decompose an eligible stem and
// merges the returned children into the track set as
// "{parent}_{child}" with default state. The merge neither disturbs
// in-progress playback nor starts the new tracks. At most one split may
// be in flight per track; failure leaves the track set untouched.
func (p *Player) RequestSplit(ctx context.Context, name string) ([]model.ChildStem, error) {
	if !Splittable(name) {
		return nil, ErrNotSplittable
	}

	p.mu.Lock()
	if p.splitter == nil {
		p.mu.Unlock()
		return nil, ErrNoSplitBackend
	}
	if p.trackIndexLocked(name) < 0 {
		p.mu.Unlock()
		return nil, ErrUnknownTrack
	}
	if p.splitting[name] {
		p.mu.Unlock()
		return nil, ErrSplitInFlight
	}
	p.splitting[name] = true
	jobID := p.jobID
	p.mu.Unlock()

	p.publish(Event{Type: EventSplitStarted, Data: SplitData{Track: name}})
	children, err := p.splitter.Split(ctx, jobID, name)

	p.mu.Lock()
	delete(p.splitting, name)
	if err != nil {
		p.mu.Unlock()
		data := SplitData{Track: name, Error: err.Error()}
		var se *SplitError
		if errors.As(err, &se) {
			data.Error = se.Message
			data.Note = se.Note
		}
		logger.Warn("split failed",
			logger.String("track", name),
			logger.ErrorField(err))
		p.publish(Event{Type: EventSplitFailed, Data: data})
		return nil, err
	}

	added := make([]string, 0, len(children))
	for _, child := range children {
		full := ChildTrackName(name, child.Name)
		if i := p.trackIndexLocked(full); i >= 0 {
			// Re-splitting refreshes the resource, not the state.
			p.tracks[i].URL = child.URL
		} else {
			t := model.NewTrack(full, child.URL)
			p.tracks = append(p.tracks, t)
			p.gains.Register(t)
		}
		added = append(added, full)
	}
	evts := []Event{
		{Type: EventSplitDone, Data: SplitData{Track: name, Children: added}},
		p.tracksEventLocked(),
	}
	p.mu.Unlock()

	logger.Info("split merged",
		logger.String("track", name),
		logger.Int("children", len(added)))
	p.publish(evts...)
	return children, nil
}

func (p *Player) trackIndexLocked(name string) int {
	for i := range p.tracks {
		if p.tracks[i].Name == name {
			return i
		}
	}
	return -1
}

func (p *Player) stateDataLocked() StateData {
	return StateData{
		JobID:    p.jobID,
		Playing:  p.playing,
		Position: p.positionLocked().Seconds(),
		Duration: p.duration.Seconds(),
	}
}

func (p *Player) timeEventLocked() Event {
	return Event{Type: EventTime, Data: TimeData{Position: p.positionLocked().Seconds()}}
}

func (p *Player) stateEventLocked() Event {
	return Event{Type: EventState, Data: p.stateDataLocked()}
}

func (p *Player) tracksEventLocked() Event {
	merged := p.gains.Merge(p.tracks)
	return Event{Type: EventTracks, Data: TracksData{
		JobID:     p.jobID,
		Tracks:    merged,
		Hierarchy: BuildHierarchy(merged),
	}}
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
