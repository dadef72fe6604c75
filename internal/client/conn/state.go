package conn

// State is the push channel lifecycle.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Closing
	ReconnectPending
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case ReconnectPending:
		return "reconnect-pending"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}
