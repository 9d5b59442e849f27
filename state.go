package framed

// State is the lifecycle state of a client connection.
//
//	NotStarted -> Waiting -> Connected -> Closing -> Disconnected
//	                 |           |
//	                 +-> Error <-+
type State int32

const (
	// StateNotStarted means Connect has never been called.
	StateNotStarted State = iota
	// StateWaiting means a dial is in progress.
	StateWaiting
	// StateConnected means the connection is up and Send is accepted.
	StateConnected
	// StateError means the last dial or the connection failed.
	StateError
	// StateClosing means Disconnect was called and the loops are shutting down.
	StateClosing
	// StateDisconnected means the connection ended.
	StateDisconnected
)

var stateNames = [...]string{
	StateNotStarted:   "not_started",
	StateWaiting:      "waiting",
	StateConnected:    "connected",
	StateError:        "error",
	StateClosing:      "closing",
	StateDisconnected: "disconnected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// busy reports whether a connection attempt is active or established.
func (s State) busy() bool {
	return s == StateWaiting || s == StateConnected
}
