package stream

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trafficdeck/trafficdeck/internal/logger"
	"github.com/trafficdeck/trafficdeck/internal/metrics"
	"github.com/trafficdeck/trafficdeck/internal/notify"
)

// State of the realtime channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrManagerClosed is returned by Connect after Stop has been called.
var ErrManagerClosed = errors.New("stream manager is stopped")

// ManagerConfig defines the channel endpoint and reconnect behavior.
type ManagerConfig struct {
	URL               string        // websocket endpoint (ex: ws://host:8001/ws/traefik-services)
	ReconnectInterval time.Duration // fixed wait between reconnect attempts
	HandshakeTimeout  time.Duration // websocket handshake deadline
	OnStateChange     func(connected bool)
}

// Manager owns the single live websocket connection to the control server.
//
// Connection loss is recovered by one repeating reconnect loop at a fixed
// interval, with no backoff and no attempt cap: the dashboard eventually
// reconnects, it does not guarantee delivery. The loop is guarded so that
// any number of close events while disconnected schedule at most one timer,
// and a successful connect cancels it.
type Manager struct {
	cfg      ManagerConfig
	dialer   *websocket.Dialer
	router   *Router
	notifier *notify.Throttle
	logger   logger.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	state         State
	gen           int // connection generation; stale read loops are ignored
	reconnectOn   bool
	reconnectStop chan struct{}
	stopped       bool
}

// NewManager creates a manager. Call Start to open the channel.
func NewManager(cfg ManagerConfig, router *Router, notifier *notify.Throttle, log logger.Logger) *Manager {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		router:   router,
		notifier: notifier,
		logger:   log,
	}
}

// Start attempts the initial connect. A failure is not fatal: the reconnect
// loop is already scheduled and the registry self-heals once a connection
// comes up.
func (m *Manager) Start() {
	if err := m.Connect(); err != nil {
		m.logger.Warn("initial channel connect failed, reconnect scheduled",
			logger.String("url", m.cfg.URL),
			logger.Error(err))
	}
}

// Connect opens the channel. It is idempotent: an already open connection
// is closed first, so at most one connection is ever live. On success any
// pending reconnect loop is cancelled.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	conn, resp, err := m.dialer.Dial(m.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		m.mu.Lock()
		if gen == m.gen && !m.stopped {
			m.state = StateDisconnected
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()
		m.notifier.TryNotify(notify.CategoryError,
			fmt.Sprintf("cannot reach traffic server: %v", err))
		return fmt.Errorf("failed to open channel to %s: %w", m.cfg.URL, err)
	}

	m.mu.Lock()
	if m.stopped || gen != m.gen {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrManagerClosed
	}
	m.conn = conn
	m.state = StateConnected
	m.cancelReconnectLocked()
	m.mu.Unlock()

	metrics.Default.Connected.Set(1)
	m.logger.Info("realtime channel connected", logger.String("url", m.cfg.URL))
	m.notifier.TryNotify(notify.CategoryConnect, "realtime channel connected")
	m.emitState(true)

	go m.readLoop(conn, gen)
	return nil
}

// readLoop consumes frames until the connection dies. Frames are handled
// one at a time, in arrival order.
func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(gen, err)
			return
		}
		m.router.HandleFrame(raw)
	}
}

func (m *Manager) handleDisconnect(gen int, cause error) {
	m.mu.Lock()
	if m.stopped || gen != m.gen {
		// A newer connection replaced this one, or Stop already cleaned up.
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	metrics.Default.Connected.Set(0)
	m.logger.Warn("realtime channel lost",
		logger.String("url", m.cfg.URL),
		logger.Error(cause))
	m.notifier.TryNotify(notify.CategoryDisconnect, "realtime channel lost, reconnecting")
	m.emitState(false)
}

// scheduleReconnectLocked starts the repeating reconnect loop unless one is
// already running. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnectOn || m.stopped {
		return
	}
	m.reconnectOn = true
	stop := make(chan struct{})
	m.reconnectStop = stop

	go m.reconnectLoop(stop)
}

// cancelReconnectLocked stops the reconnect loop if one is pending.
// Caller holds m.mu.
func (m *Manager) cancelReconnectLocked() {
	if !m.reconnectOn {
		return
	}
	m.reconnectOn = false
	close(m.reconnectStop)
	m.reconnectStop = nil
}

func (m *Manager) reconnectLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.Default.ReconnectAttempts.Inc()
			if err := m.Connect(); err != nil {
				if errors.Is(err, ErrManagerClosed) {
					return
				}
				m.logger.Warn("reconnect attempt failed", logger.Error(err))
				continue
			}
			// Connect cancelled this loop on success.
			return
		case <-stop:
			return
		}
	}
}

// Connected reports whether the channel is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// State returns the current channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stop tears the channel down for good: the connection is closed and the
// reconnect loop is cancelled, on every path, so no timer keeps dialing
// after the consumer is gone.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.gen++
	m.cancelReconnectLocked()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.mu.Unlock()

	metrics.Default.Connected.Set(0)
	m.logger.Info("realtime channel stopped")
}

func (m *Manager) emitState(connected bool) {
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(connected)
	}
}
