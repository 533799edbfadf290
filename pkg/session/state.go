package session

// State is the connection state of a session
type State int

const (
	// StateDisconnected means no transport connection is held
	StateDisconnected State = iota

	// StateConnecting means a transport connection is being opened
	StateConnecting

	// StateConnected means the session holds a live transport connection
	StateConnected
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
