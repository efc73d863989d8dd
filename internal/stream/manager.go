package stream

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatdeck/internal/bus"
	"go.uber.org/zap"
)

// Defaults for Options fields left zero.
const (
	DefaultDialTimeout = 15 * time.Second
	DefaultHeartbeat   = 30 * time.Second
	DefaultBackoffBase = time.Second
	DefaultBackoffCap  = 30 * time.Second
	DefaultMaxAttempts = 10
)

// Time allowed to write a frame to the peer.
const writeWait = 10 * time.Second

// Handler consumes decoded stream events. Events are delivered strictly in
// receipt order from a single goroutine.
type Handler interface {
	HandleEvent(Event)
}

// Options configures the connection manager.
type Options struct {
	URL         string
	DialTimeout time.Duration
	Heartbeat   time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int
}

// Manager owns the persistent event stream: connect, heartbeat, close
// detection, bounded exponential-backoff reconnect, and dispatch of decoded
// events to the handler.
type Manager struct {
	opts    Options
	machine *Machine
	handler Handler
	bus     *bus.Bus
	logger  *zap.Logger
	dialer  *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connDone  chan struct{}
	failures  int
	reconnect *time.Timer
	closed    bool
}

// NewManager creates a manager. Zero option fields use the defaults above.
func NewManager(opts Options, machine *Machine, handler Handler, b *bus.Bus, logger *zap.Logger) *Manager {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = DefaultBackoffCap
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		opts:    opts,
		machine: machine,
		handler: handler,
		bus:     b,
		logger:  logger,
		dialer:  &websocket.Dialer{HandshakeTimeout: opts.DialTimeout},
	}
}

// ReconnectDelay returns the backoff delay before reconnect attempt n
// (0-based): min(base * 1.5^n, limit).
func ReconnectDelay(attempt int, base, limit time.Duration) time.Duration {
	d := time.Duration(float64(base) * math.Pow(1.5, float64(attempt)))
	if d <= 0 || d > limit {
		return limit
	}
	return d
}

// State returns the current connection state.
func (m *Manager) State() State {
	return m.machine.Current()
}

// Connect starts the connection. A manual Connect resets the attempt
// counter, so it also recovers from a terminal reconnect failure.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.machine.Current() != Disconnected {
		return
	}
	m.failures = 0
	_ = m.machine.Transition(Connecting)
	go m.dial()
}

func (m *Manager) dial() {
	conn, _, err := m.dialer.Dial(m.opts.URL, nil)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.logger.Warn("stream dial failed", zap.Error(err))
		_ = m.machine.Transition(Disconnected)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}
	m.conn = conn
	m.connDone = make(chan struct{})
	m.failures = 0
	_ = m.machine.Transition(Open)
	done := m.connDone
	m.mu.Unlock()

	m.logger.Info("stream connected", zap.String("url", m.opts.URL))
	go m.heartbeatLoop(conn, done)
	go m.readLoop(conn, done)
}

// readLoop processes inbound frames until the connection dies. It is the
// only goroutine that calls the handler, which gives strict receipt-order
// processing.
func (m *Manager) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(err, done)
			return
		}
		evt, derr := Decode(data)
		if derr != nil {
			// A bad event is dropped; the connection stays up.
			if errors.Is(derr, ErrUnknownEvent) {
				m.logger.Debug("ignoring stream event", zap.Error(derr))
			} else {
				m.logger.Warn("dropping malformed stream event", zap.Error(derr))
			}
			continue
		}
		if _, ok := evt.(*Ping); ok {
			continue
		}
		m.handler.HandleEvent(evt)
	}
}

type pingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// heartbeatLoop sends the keepalive frame. A failed send is a connection
// fault: close locally and let the read loop drive the reconnect.
func (m *Manager) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(m.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(pingFrame{Type: "ping", Timestamp: time.Now().UnixMilli()}); err != nil {
				m.logger.Warn("heartbeat send failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (m *Manager) connectionLost(err error, done chan struct{}) {
	m.mu.Lock()
	if m.connDone == done {
		close(done)
		m.conn = nil
		m.connDone = nil
	}
	if m.closed {
		_ = m.machine.Transition(Disconnected)
		m.mu.Unlock()
		return
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		m.logger.Warn("stream connection lost", zap.Error(err))
	} else {
		m.logger.Info("stream closed by peer")
	}
	_ = m.machine.Transition(Disconnected)
	m.scheduleReconnectLocked()
	m.mu.Unlock()
}

// scheduleReconnectLocked must be called with the lock held.
func (m *Manager) scheduleReconnectLocked() {
	m.failures++
	if m.failures > m.opts.MaxAttempts {
		m.logger.Error("stream reconnect attempts exhausted", zap.Int("attempts", m.opts.MaxAttempts))
		if m.bus != nil {
			m.bus.Emit(bus.KindStreamTerminalError,
				fmt.Sprintf("stream connection failed after %d attempts", m.opts.MaxAttempts))
		}
		return
	}
	delay := ReconnectDelay(m.failures-1, m.opts.BackoffBase, m.opts.BackoffCap)
	m.logger.Info("scheduling stream reconnect",
		zap.Int("attempt", m.failures), zap.Duration("delay", delay))
	m.reconnect = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		_ = m.machine.Transition(Connecting)
		m.mu.Unlock()
		m.dial()
	})
}

// Close tears the manager down: pending reconnect cancelled, heartbeat
// stopped, connection closed with the normal-closure code so no reconnect
// is ever attempted afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	conn, done := m.conn, m.connDone
	m.conn, m.connDone = nil, nil
	if conn != nil {
		_ = m.machine.Transition(Closing)
	}
	m.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}

	m.mu.Lock()
	_ = m.machine.Transition(Disconnected)
	m.mu.Unlock()
	m.logger.Info("stream manager closed")
}
