package ws

import "time"

// Conn is the write side of a duplex connection. *websocket.Conn
// satisfies it; tests use in-memory fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConnInfo carries per-connection identity and correlation data.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
