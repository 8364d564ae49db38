package player

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPlayableTracks means every track in the set failed to load,
	// so the play attempt was aborted without leaving Stopped.
	ErrNoPlayableTracks = errors.New("player: no playable tracks")

	// ErrTransportBusy rejects a transport operation entered while a
	// previous one is still mid-flight.
	ErrTransportBusy = errors.New("player: transport operation in flight")

	// ErrUnknownTrack names a track that is not in the active set.
	ErrUnknownTrack = errors.New("player: unknown track")

	// ErrNotSplittable rejects split requests for track kinds the
	// backend cannot decompose.
	ErrNotSplittable = errors.New("player: track kind cannot be split")

	// ErrSplitInFlight rejects a split request for a track whose prior
	// request has not resolved yet.
	ErrSplitInFlight = errors.New("player: split already in flight for track")

	// ErrNoSplitBackend means no split backend is configured.
	ErrNoSplitBackend = errors.New("player: no split backend configured")
)

// LoadStage tells which phase of a track load failed.
type LoadStage string

const (
	StageFetch  LoadStage = "fetch"
	StageDecode LoadStage = "decode"
)

// LoadError is a per-track load failure. The failing track is skipped
// for that playback attempt; the error never aborts the other tracks.
type LoadError struct {
	Track string
	Stage LoadStage
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("player: %s %q: %v", e.Stage, e.Track, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SplitError carries a split backend rejection verbatim: the error
// message plus an optional human-readable note, both surfaced to the
// end user unchanged.
type SplitError struct {
	Message string
	Note    string
}

func (e *SplitError) Error() string {
	if e.Note != "" {
		return fmt.Sprintf("player: split failed: %s (%s)", e.Message, e.Note)
	}
	return fmt.Sprintf("player: split failed: %s", e.Message)
}
