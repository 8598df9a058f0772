package nordchat

// ConnectionPhase is the application's view of the connection. It is kept
// in AppState and is distinct from the socket's own readiness.
type ConnectionPhase int

const (
	// PhaseClosed means no session is open. Initial phase.
	PhaseClosed ConnectionPhase = iota

	// PhaseConnecting means a socket was created and is not yet open.
	PhaseConnecting

	// PhaseConnected means the socket is open.
	PhaseConnected

	// PhaseClosing means the client is shutting the session down itself.
	PhaseClosing
)

// String returns the string representation of a ConnectionPhase.
func (p ConnectionPhase) String() string {
	switch p {
	case PhaseClosed:
		return "closed"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Close codes with special meaning to the reconnect policy.
const (
	CloseNormal   = 1000
	CloseNoStatus = 1005
	CloseAbnormal = 1006
)

// IsDeliberateClose reports whether a close code means the peer or the
// client ended the session on purpose. Such closes are never retried.
func IsDeliberateClose(code int) bool {
	return code == CloseNormal || code == CloseNoStatus
}

// PhaseEvent represents a phase change.
type PhaseEvent struct {
	OldPhase ConnectionPhase
	NewPhase ConnectionPhase
	Code     int // close code when NewPhase is PhaseClosed
}
