package ws

import (
	"errors"
	"sync"
	"time"

	"chat-relay/internal/event"
)

// fakeConn records written frames and can be told to fail writes.
type fakeConn struct {
	mu         sync.Mutex
	frames     [][]byte
	failWrites bool
	closed     bool
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("write on closed connection")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.frames = append(f.frames, buf)
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() []event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.Event, 0, len(f.frames))
	for _, frame := range f.frames {
		ev, err := event.Decode(frame)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}
