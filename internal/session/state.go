package session

// State is the connection lifecycle state of the controller. Exactly one
// controller exists per process; transitions are the only legal mutations.
type State int

const (
	// StateDisconnected is the idle state and the initial one. Re-enterable
	// entry point for Connect.
	StateDisconnected State = iota

	// StateConnecting covers credential resolution, device acquisition, and
	// the channel dial.
	StateConnecting

	// StateConnected means the channel is open and capture is running.
	StateConnected

	// StateError is reached after a classified failure. Re-enterable entry
	// point for Connect; there is no automatic retry.
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
