package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/internal/event"
	"chat-relay/internal/observability"
)

const writeTimeout = 5 * time.Second

// Broadcaster fans a serialized event out to every registered
// connection. A failing consumer is evicted, never retried.
type Broadcaster struct {
	registry *Registry

	// mu serializes fan-outs so events reach every connection in the
	// order they were submitted.
	mu sync.Mutex
}

// NewBroadcaster constructs a Broadcaster over the registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast sends the event to all connections. Write failures are
// marked during iteration and the connections evicted afterwards, so the
// registry is never mutated while it is being walked.
func (b *Broadcaster) Broadcast(e event.Event) {
	payload, err := event.Encode(e)
	if err != nil {
		log.Printf("broadcast encode error: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var failed []Handle
	b.registry.ForEach(func(h Handle, conn Conn, info ConnInfo) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			failed = append(failed, h)
		}
	})

	for _, h := range failed {
		conn, info, ok := b.registry.Get(h)
		if !ok {
			continue
		}
		_ = conn.Close()
		b.registry.Unregister(h)
		b.publishEviction(info)
	}
	if len(failed) > 0 {
		observability.AddEvictions(len(failed))
	}
	observability.IncBroadcast(string(e.Type))
}

// SendTo delivers an event to a single connection, used for private
// error frames.
func (b *Broadcaster) SendTo(conn Conn, e event.Event) error {
	payload, err := event.Encode(e)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (b *Broadcaster) publishEviction(info ConnInfo) {
	observability.IncWSEvent("ws_error")
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   wsEventPayload(info, "ws_error", time.Since(info.ConnectedAt).Milliseconds(), "broadcast write failed"),
	}, headers)
}
