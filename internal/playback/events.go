package playback

import "github.com/dgnsrekt/speechify/internal/document"

// State is the playback state of a Controller.
type State int

const (
	// NotPlaying is the initial state.
	NotPlaying State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "PLAYING"
	}
	return "NOT_PLAYING"
}

// EventType identifies what an Event reports.
type EventType int

const (
	// EventState reports a state change.
	EventState EventType = iota

	// EventChunk reports a chunk handed to the speaker.
	EventChunk

	// EventError reports a failure that left the controller idle or skipped
	// a chunk.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventState:
		return "state"
	case EventChunk:
		return "chunk"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to the subscribed Listener.
type Event struct {
	Type  EventType
	State State
	Chunk *document.Chunk
	Err   error
}

// Listener receives controller events. It is called synchronously and must
// not block.
type Listener func(Event)
