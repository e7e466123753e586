package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"civic-reports/internal/retry"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConnected is returned by Manager.Conn outside the Connected state.
var ErrNotConnected = errors.New("database not connected")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is the part of a connection pool the manager needs.
type Conn interface {
	Ping(ctx context.Context) error
	Close()
}

type ManagerOptions struct {
	MaxReconnectAttempts int
	BaseDelay            time.Duration
	MaxDelay             time.Duration

	// Sleep overrides the wait between reconnect attempts.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnStateChange is called with the manager lock held; it must not call
	// back into the manager.
	OnStateChange func(from, to State)
}

func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		MaxReconnectAttempts: 10,
		BaseDelay:            time.Second,
		MaxDelay:             30 * time.Second,
	}
}

// Manager owns a connection and moves it through
// Disconnected -> Connecting -> Connected -> Reconnecting, reconnecting in the
// background with capped exponential backoff.
type Manager[C Conn] struct {
	dial func(ctx context.Context) (C, error)
	opts ManagerOptions

	mu      sync.RWMutex
	state   State
	conn    C
	hasConn bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoolManager manages a pgx pool for connectionString. onConnect, when set,
// runs against every fresh pool before it is handed out.
func NewPoolManager(connectionString string, opts ManagerOptions, onConnect func(ctx context.Context, pool *pgxpool.Pool) error) *Manager[*pgxpool.Pool] {
	return NewManagerWithDialer(func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := NewClient(ctx, connectionString)
		if err != nil {
			return nil, err
		}
		if onConnect != nil {
			if err := onConnect(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return pool, nil
	}, opts)
}

func NewManagerWithDialer[C Conn](dial func(ctx context.Context) (C, error), opts ManagerOptions) *Manager[C] {
	if opts.MaxReconnectAttempts < 1 {
		opts.MaxReconnectAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager[C]{
		dial:   dial,
		opts:   opts,
		state:  StateDisconnected,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start makes the first connection attempt. On failure the manager keeps
// reconnecting in the background and the error is returned for logging.
func (m *Manager[C]) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("manager closed")
	}
	m.transition(StateConnecting)
	m.mu.Unlock()

	log.Println("Attempting to connect to PostgreSQL...")
	conn, err := m.dial(ctx)

	m.mu.Lock()
	if err == nil && !m.closed {
		m.conn, m.hasConn = conn, true
		m.transition(StateConnected)
		m.mu.Unlock()
		log.Println("PostgreSQL connected")
		return nil
	}
	m.mu.Unlock()
	if err == nil {
		conn.Close()
		return errors.New("manager closed")
	}

	log.Printf("Warning: unable to connect to PostgreSQL, retrying in background: %v", err)
	m.scheduleReconnect()
	return err
}

// Conn returns the live connection, or ErrNotConnected.
func (m *Manager[C]) Conn() (C, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateConnected || !m.hasConn {
		var zero C
		return zero, fmt.Errorf("%w (state=%s)", ErrNotConnected, m.state)
	}
	return m.conn, nil
}

func (m *Manager[C]) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ReportFailure moves a connected manager to Reconnecting when err indicates
// the connection is gone. Statement errors are ignored.
func (m *Manager[C]) ReportFailure(err error) {
	if !IsConnectionError(err) {
		return
	}
	if m.State() != StateConnected {
		return
	}
	log.Printf("Warning: PostgreSQL connection lost: %v", err)
	m.scheduleReconnect()
}

// Ping checks the live connection. A manager that gave up reconnecting starts
// a fresh cycle, so a health probe is enough to recover from a long outage.
func (m *Manager[C]) Ping(ctx context.Context) error {
	m.mu.RLock()
	giveUp := m.state == StateDisconnected && !m.closed
	m.mu.RUnlock()
	if giveUp {
		log.Println("PostgreSQL disconnected, starting a new reconnect cycle")
		m.scheduleReconnect()
		return fmt.Errorf("%w (state=%s)", ErrNotConnected, StateDisconnected)
	}

	conn, err := m.Conn()
	if err != nil {
		return err
	}
	if err := conn.Ping(ctx); err != nil {
		m.ReportFailure(err)
		return err
	}
	return nil
}

// Reconnect drops the current connection and starts a fresh reconnect cycle.
func (m *Manager[C]) Reconnect() {
	m.scheduleReconnect()
}

func (m *Manager[C]) scheduleReconnect() {
	m.mu.Lock()
	if m.closed || m.state == StateReconnecting {
		m.mu.Unlock()
		return
	}
	old, hadConn := m.conn, m.hasConn
	var zero C
	m.conn, m.hasConn = zero, false
	m.transition(StateReconnecting)
	m.wg.Add(1)
	m.mu.Unlock()

	if hadConn {
		old.Close()
	}
	go m.reconnectLoop()
}

func (m *Manager[C]) reconnectLoop() {
	defer m.wg.Done()

	cfg := retry.Config{
		MaxAttempts:   m.opts.MaxReconnectAttempts,
		BaseDelay:     m.opts.BaseDelay,
		MaxDelay:      m.opts.MaxDelay,
		BackoffFactor: 2,
		Sleep:         m.opts.Sleep,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Printf("PostgreSQL reconnection attempt %d/%d failed, next in %s", attempt, m.opts.MaxReconnectAttempts, delay)
		},
	}
	conn, err := retry.Do(m.ctx, cfg, func(ctx context.Context) (C, error) {
		return m.dial(ctx)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		log.Printf("PostgreSQL max reconnection attempts (%d) reached, giving up: %v", m.opts.MaxReconnectAttempts, err)
		m.transition(StateDisconnected)
		return
	}
	m.conn, m.hasConn = conn, true
	m.transition(StateConnected)
	log.Println("PostgreSQL reconnected")
}

// Close stops reconnecting and releases the connection.
func (m *Manager[C]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasConn {
		m.conn.Close()
		var zero C
		m.conn, m.hasConn = zero, false
	}
	m.transition(StateDisconnected)
}

// transition must be called with mu held.
func (m *Manager[C]) transition(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(from, to)
	}
}
