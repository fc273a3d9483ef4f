// Package client is the consumer-side SDK for the relay service: a
// websocket connection manager with queued sends and reconnection, plus
// a reconciliation store keeping per-conversation caches consistent with
// broadcast events.
package client

import (
	"context"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/internal/event"
)

// State names the connection manager's lifecycle phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
)

const (
	defaultBaseDelay   = time.Second
	defaultMaxAttempts = 5
)

// Transport is one live duplex connection. The websocket implementation
// is the default; tests substitute in-memory fakes.
type Transport interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Transport, error)
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, rawURL string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer substitutes the transport dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithBackoff overrides the reconnect schedule.
func WithBackoff(baseDelay time.Duration, maxAttempts int) Option {
	return func(m *Manager) {
		m.baseDelay = baseDelay
		m.maxAttempts = maxAttempts
	}
}

// Manager owns one outbound connection per session: queued sends while
// offline, FIFO flush on open, exponential-backoff reconnection and a
// publish/subscribe surface for inbound events.
type Manager struct {
	endpoint    string
	dialer      Dialer
	baseDelay   time.Duration
	maxAttempts int

	mu       sync.Mutex
	state    State
	token    string
	conn     Transport
	queue    [][]byte
	subs     map[int]func(event.Event)
	nextSub  int
	attempts int
	retry    *time.Timer

	// gen invalidates goroutines belonging to torn-down connections.
	gen int
}

// New builds a Manager for the relay's websocket endpoint.
func New(endpoint string, opts ...Option) *Manager {
	m := &Manager{
		endpoint:    endpoint,
		dialer:      wsDialer{},
		baseDelay:   defaultBaseDelay,
		maxAttempts: defaultMaxAttempts,
		state:       StateDisconnected,
		subs:        map[int]func(event.Event){},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State reports the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens a connection carrying the session identity. A no-op when
// already open or connecting, so duplicate sockets are never created.
func (m *Manager) Connect(token string) {
	m.mu.Lock()
	if m.state == StateOpen || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.token = token
	m.attempts = 0
	m.state = StateConnecting
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen)
}

// Send transmits immediately when open; otherwise the event is queued
// and a connection attempt is triggered if none is in flight. Queued
// events flush in enqueue order before any newer send.
func (m *Manager) Send(e event.Event) error {
	data, err := event.Encode(e)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.state == StateOpen {
		conn := m.conn
		err := conn.WriteMessage(data)
		if err != nil {
			// In-flight frame is lost; the close is handled by the read
			// loop, which owns the reconnect cycle.
			m.mu.Unlock()
			return err
		}
		m.mu.Unlock()
		return nil
	}

	m.queue = append(m.queue, data)
	startConnect := m.state == StateDisconnected && m.token != "" && m.attempts < m.maxAttempts
	var gen int
	if startConnect {
		m.state = StateConnecting
		gen = m.gen
	}
	m.mu.Unlock()

	if startConnect {
		go m.dial(gen)
	}
	return nil
}

// Subscribe registers a listener for inbound events and returns its
// unsubscribe function. Unsubscribing twice is harmless.
func (m *Manager) Subscribe(handler func(event.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Disconnect tears the session down: the connection is closed, queued
// events and subscribers are dropped and the retry budget is exhausted
// until the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.state = StateDisconnected
	m.attempts = m.maxAttempts
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	conn := m.conn
	m.conn = nil
	m.queue = nil
	m.subs = map[int]func(event.Event){}
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (m *Manager) dial(gen int) {
	m.mu.Lock()
	endpoint := m.sessionURL()
	dialer := m.dialer
	m.mu.Unlock()

	conn, err := dialer.Dial(context.Background(), endpoint)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		log.Printf("ws dial failed: %v", err)
		m.scheduleRetryLocked(gen)
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.state = StateOpen
	m.attempts = 0

	// Flush under the lock: newer Sends wait on the mutex, so the queue
	// drains strictly before them.
	pending := m.queue
	m.queue = nil
	for i, data := range pending {
		if err := conn.WriteMessage(data); err != nil {
			log.Printf("ws flush failed: %v", err)
			m.queue = append([][]byte{}, pending[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn Transport, gen int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			if gen != m.gen {
				m.mu.Unlock()
				return
			}
			m.conn = nil
			m.scheduleRetryLocked(gen)
			m.mu.Unlock()
			_ = conn.Close()
			return
		}

		e, err := event.Decode(data)
		if err != nil {
			log.Printf("inbound frame rejected: %v", err)
			continue
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		handlers := make([]func(event.Event), 0, len(m.subs))
		for _, h := range m.subs {
			handlers = append(handlers, h)
		}
		m.mu.Unlock()

		for _, h := range handlers {
			h(e)
		}
	}
}

// scheduleRetryLocked arms the next reconnect attempt. The nth retry
// waits baseDelay * 2^(n-1); after maxAttempts the manager goes quiet
// until the consumer reconnects explicitly.
func (m *Manager) scheduleRetryLocked(gen int) {
	m.attempts++
	if m.attempts > m.maxAttempts {
		m.state = StateDisconnected
		return
	}

	delay := m.baseDelay << (m.attempts - 1)
	m.state = StateReconnecting
	m.retry = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if gen != m.gen || m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.state = StateConnecting
		m.retry = nil
		m.mu.Unlock()
		m.dial(gen)
	})
}

func (m *Manager) sessionURL() string {
	u, err := url.Parse(m.endpoint)
	if err != nil {
		return m.endpoint
	}
	q := u.Query()
	q.Set("session", "chat")
	if m.token != "" {
		q.Set("token", m.token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
