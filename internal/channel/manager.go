package channel

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tunecraft/api/internal/model"
)

// Connection lifecycle states, surfaced for diagnostics only. They never by
// themselves change job status: the transport may recover while the backend
// job keeps running, so only the stall watchdog may fail a job.
type State string

const (
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// Handler receives each decoded inbound event
type Handler func(ev *model.ChannelEvent)

// StateFunc receives connection lifecycle signals
type StateFunc func(state State, err error)

// Config tunes the push-channel connection
type Config struct {
	URL               string
	AuthToken         string
	HandshakeTimeout  time.Duration
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
}

// DefaultConfig returns the production channel tuning
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		HandshakeTimeout:  10 * time.Second,
		ReconnectAttempts: 5,
		ReconnectBackoff:  3 * time.Second,
	}
}

type subscribeFrame struct {
	Action string   `json:"action"`
	Events []string `json:"events"`
}

// Manager owns one push-channel connection for one tracking session. It
// dials, resubscribes after reconnects, and tears down when the session
// ends so no background traffic or duplicate deliveries outlive the job.
type Manager struct {
	cfg     Config
	handler Handler
	onState StateFunc
	dialer  *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	events   []string
	closed   bool
	readDone chan struct{}
}

// NewManager creates a disconnected channel manager
func NewManager(cfg Config, handler Handler, onState StateFunc) *Manager {
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 3 * time.Second
	}
	if onState == nil {
		onState = func(State, error) {}
	}
	return &Manager{
		cfg:     cfg,
		handler: handler,
		onState: onState,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Connect opens the channel and subscribes to the named event categories.
// A failed first dial enters the same bounded-backoff retry loop as a
// dropped connection, continuing in the background; the returned error is
// diagnostic only and recovery is reported through the state callback.
// The read loop runs until Disconnect or until the reconnect budget is spent.
func (m *Manager) Connect(eventNames []string) error {
	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		return fmt.Errorf("channel already connected")
	}
	m.closed = false
	m.events = append([]string(nil), eventNames...)

	conn, err := m.dialLocked()
	if err != nil {
		m.mu.Unlock()
		log.Printf("[Channel] initial dial failed, retrying: %v", err)
		go m.reconnect()
		return err
	}
	m.conn = conn
	m.readDone = make(chan struct{})
	go m.readLoop(conn, m.readDone)
	m.mu.Unlock()
	m.onState(StateConnected, nil)
	return nil
}

// Disconnect unsubscribes and closes the channel. Must be called when the
// job reaches a terminal state or the surface unmounts.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closed = true
	conn := m.conn
	m.conn = nil
	done := m.readDone
	m.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) dialLocked() (*websocket.Conn, error) {
	header := map[string][]string{}
	if m.cfg.AuthToken != "" {
		header["Authorization"] = []string{"Bearer " + m.cfg.AuthToken}
	}

	conn, _, err := m.dialer.Dial(m.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("channel dial failed: %w", err)
	}

	frame := subscribeFrame{Action: "subscribe", Events: m.events}
	if err := conn.WriteJSON(frame); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel subscribe failed: %w", err)
	}
	return conn, nil
}

func (m *Manager) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if m.isClosed() {
				return
			}
			log.Printf("[Channel] read error, attempting reconnect: %v", err)
			// reconnect spawns a fresh read loop on success
			m.reconnect()
			return
		}

		var ev model.ChannelEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[Channel] dropping undecodable frame: %v", err)
			continue
		}
		if ev.Name == "" {
			continue
		}
		m.handler(&ev)
	}
}

// reconnect retries with fixed backoff up to the configured bound and
// resubscribes on success. Spending the whole budget does not fail the job.
func (m *Manager) reconnect() bool {
	for attempt := 1; attempt <= m.cfg.ReconnectAttempts; attempt++ {
		m.onState(StateReconnecting, nil)
		time.Sleep(m.cfg.ReconnectBackoff)

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return false
		}
		conn, err := m.dialLocked()
		if err != nil {
			m.mu.Unlock()
			log.Printf("[Channel] reconnect %d/%d failed: %v", attempt, m.cfg.ReconnectAttempts, err)
			continue
		}
		m.conn = conn
		m.readDone = make(chan struct{})
		go m.readLoop(conn, m.readDone)
		m.mu.Unlock()

		m.onState(StateConnected, nil)
		log.Printf("[Channel] reconnected on attempt %d", attempt)
		return true
	}

	// Drop any dead connection so the manager can be connected again.
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()

	err := fmt.Errorf("channel reconnect budget exhausted after %d attempts", m.cfg.ReconnectAttempts)
	log.Printf("[Channel] %v", err)
	m.onState(StateError, err)
	return false
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
