// Package connection adapts Twilio Media Streams WebSockets to call sessions.
package connection

// ConnectionState represents the state of a connection.
type ConnectionState int

const (
	// ConnectionStateNew - socket accepted, read pump not started
	ConnectionStateNew ConnectionState = iota
	// ConnectionStateConnecting - reading, no start event yet
	ConnectionStateConnecting
	// ConnectionStateConnected - start event received, media flowing
	ConnectionStateConnected
	// ConnectionStateDisconnected - stop event received
	ConnectionStateDisconnected
	// ConnectionStateFailed - read failed before a stop event
	ConnectionStateFailed
	// ConnectionStateClosed - socket closed
	ConnectionStateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateFailed:
		return "failed"
	case ConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
