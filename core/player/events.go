package player

import "stemdeck/model"

// EventType names an engine event published to observers.
type EventType string

const (
	// EventTime is the periodic playhead update while playing.
	EventTime EventType = "time"

	// EventState fires on every transport state change.
	EventState EventType = "state"

	// EventTracks fires when the track set or any track's gain state
	// changes.
	EventTracks EventType = "tracks"

	EventSplitStarted EventType = "split_started"
	EventSplitDone    EventType = "split_done"
	EventSplitFailed  EventType = "split_failed"
)

// Event is one published engine snapshot. Data is one of the *Data
// payload types below.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// TimeData is the payload of EventTime. Position is seconds.
type TimeData struct {
	Position float64 `json:"position"`
}

// StateData is the payload of EventState.
type StateData struct {
	JobID    string  `json:"jobId"`
	Playing  bool    `json:"playing"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

// TracksData is the payload of EventTracks: the full track set with
// current gain state merged in, plus the grouped view.
type TracksData struct {
	JobID     string        `json:"jobId"`
	Tracks    []model.Track `json:"tracks"`
	Hierarchy Hierarchy     `json:"hierarchy"`
}

// SplitData is the payload of the split lifecycle events.
type SplitData struct {
	Track    string   `json:"track"`
	Children []string `json:"children,omitempty"`
	Error    string   `json:"error,omitempty"`
	Note     string   `json:"note,omitempty"`
}

// EventFunc observes engine events. Callbacks run on engine goroutines
// and must not block or call back into the player.
type EventFunc func(Event)
