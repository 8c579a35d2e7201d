package domain

import "fmt"

// State is the lifecycle position of a chat session.
type State int

const (
	// StateIdle accepts a new submission.
	StateIdle State = iota
	// StateAwaitingResponse has one submission in flight.
	StateAwaitingResponse
	// StateConcluded is terminal; the interviewer has closed the interview.
	StateConcluded
)

var stateNames = [...]string{"idle", "awaiting_response", "concluded"}

// String returns the wire name of the state.
func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", string(text))
}
