package posestream

import "fmt"

// State is the lifecycle state of a Streamer.
//
//	Idle → Starting → Streaming → Stopped
//	Starting → Idle      (capture acquisition failed)
//	Starting → Stopped   (transport open failed)
//	Stopped  → Starting  (a new session)
type State int

const (
	StateIdle State = iota
	StateStarting
	StateStreaming
	StateStopped
)

var stateNames = map[State]string{
	StateIdle:      "idle",
	StateStarting:  "starting",
	StateStreaming: "streaming",
	StateStopped:   "stopped",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a session is being set up or is running.
func (s State) Active() bool {
	return s == StateStarting || s == StateStreaming
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("posestream: unknown state %q", text)
}
