package domain

type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
)

// IsTerminal reports whether a Session in this state can never be resumed.
func (s ConnectionState) IsTerminal() bool {
	return s == StateDisconnected || s == StateFailed
}

func (s ConnectionState) String() string { return string(s) }
