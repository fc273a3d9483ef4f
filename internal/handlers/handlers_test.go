package handlers

import (
	"sync"
	"time"
)

// recordingConn implements ws.Conn and captures broadcast frames.
type recordingConn struct {
	mu     sync.Mutex
	writes [][]byte
}

func newRecordingConn() *recordingConn {
	return &recordingConn{}
}

func (c *recordingConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.writes = append(c.writes, buf)
	return nil
}

func (c *recordingConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}
