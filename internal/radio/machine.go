package radio

import "github.com/agentradio/radio/internal/ttypes"

// Event is something that happened to a station.
type Event int

const (
	// EventStart is the listener pressing play
	EventStart Event = iota

	// EventPause is the listener pressing pause
	EventPause

	// EventSegmentEnded is the sink finishing the loaded segment on its own
	EventSegmentEnded

	// EventFetchSucceeded is a fetched segment having been appended to the queue
	EventFetchSucceeded

	// EventFetchFailed is a fetch ending in an error
	EventFetchFailed

	// EventTick is the replenishment scheduler firing
	EventTick

	// EventPlaybackFailed is the sink refusing the segment it was handed
	EventPlaybackFailed
)

// String returns the string representation of the event
func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventPause:
		return "pause"
	case EventSegmentEnded:
		return "segment-ended"
	case EventFetchSucceeded:
		return "fetch-succeeded"
	case EventFetchFailed:
		return "fetch-failed"
	case EventTick:
		return "tick"
	case EventPlaybackFailed:
		return "playback-failed"
	default:
		return "unknown"
	}
}

// Action is a side effect the controller performs after a transition.
type Action int

const (
	// ActionFetch starts a segment fetch
	ActionFetch Action = iota

	// ActionPlayNext dequeues the head segment and hands it to the sink
	ActionPlayNext

	// ActionResume continues the segment loaded in the sink
	ActionResume

	// ActionPauseSink pauses the sink, keeping its segment loaded
	ActionPauseSink

	// ActionRelease frees the segment loaded in the sink
	ActionRelease
)

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case ActionFetch:
		return "fetch"
	case ActionPlayNext:
		return "play-next"
	case ActionResume:
		return "resume"
	case ActionPauseSink:
		return "pause-sink"
	case ActionRelease:
		return "release"
	default:
		return "unknown"
	}
}

// Snapshot is everything the transition function needs to know.
type Snapshot struct {
	State      ttypes.State
	QueueDepth int
	InFlight   bool // a fetch is outstanding
	Loaded     bool // the sink holds a segment
}

// Transition computes the next state and the actions to perform.
// It is pure: the controller owns every side effect.
func Transition(s Snapshot, ev Event) (ttypes.State, []Action) {
	switch ev {
	case EventStart:
		switch s.State {
		case ttypes.StateIdle, ttypes.StatePaused:
			if s.State == ttypes.StatePaused && s.Loaded {
				return ttypes.StatePlaying, []Action{ActionResume}
			}
			if s.QueueDepth > 0 {
				return ttypes.StatePlaying, []Action{ActionPlayNext}
			}
			return ttypes.StateLoading, fetchUnlessInFlight(s, nil)
		}

	case EventPause:
		if s.State == ttypes.StatePlaying {
			if s.Loaded {
				return ttypes.StatePaused, []Action{ActionPauseSink}
			}
			return ttypes.StatePaused, nil
		}

	case EventSegmentEnded, EventPlaybackFailed:
		actions := []Action{ActionRelease}
		if s.State != ttypes.StatePlaying {
			return s.State, actions
		}
		if s.QueueDepth > 0 {
			return s.State, append(actions, ActionPlayNext)
		}
		return s.State, fetchUnlessInFlight(s, actions)

	case EventFetchSucceeded:
		switch {
		case s.State == ttypes.StateLoading:
			return ttypes.StatePlaying, []Action{ActionPlayNext}
		case s.State == ttypes.StatePlaying && !s.Loaded && s.QueueDepth > 0:
			return s.State, []Action{ActionPlayNext}
		}

	case EventFetchFailed:
		// A failed first fetch leaves the station live but silent until
		// the scheduler's next tick retries.
		if s.State == ttypes.StateLoading {
			return ttypes.StatePlaying, nil
		}

	case EventTick:
		if s.State != ttypes.StatePlaying {
			return s.State, nil
		}
		var actions []Action
		depth := s.QueueDepth
		if !s.Loaded && depth > 0 {
			actions = append(actions, ActionPlayNext)
			depth--
		}
		if depth < lowWaterMark && !s.InFlight {
			actions = append(actions, ActionFetch)
		}
		return s.State, actions
	}

	return s.State, nil
}

func fetchUnlessInFlight(s Snapshot, actions []Action) []Action {
	if s.InFlight {
		return actions
	}
	return append(actions, ActionFetch)
}
