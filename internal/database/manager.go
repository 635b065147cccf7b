package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// State describes the lifecycle stage of a Manager.
type State int

const (
	StateIdle State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrManagerClosed is returned when Init is called after Close.
var ErrManagerClosed = errors.New("connection manager closed")

// ManagerConfig configures the shared broker connections. Empty URLs disable a backend.
type ManagerConfig struct {
	Name       string
	RedisURL   string
	NATSURL    string
	MaxRetries int
	RetryWait  time.Duration
}

// Manager owns the process-wide Redis and NATS connections shared by the
// realtime, notification and study guide services.
type Manager struct {
	cfg    ManagerConfig
	logger zerolog.Logger

	mu    sync.RWMutex
	state State
	redis *redis.Client
	nats  *nats.Conn
}

// NewManager constructs an idle manager. No connection is opened until Init.
func NewManager(cfg ManagerConfig, logger zerolog.Logger) *Manager {
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Name == "" {
		cfg.Name = "linguahub"
	}

	return &Manager{
		cfg:    cfg,
		logger: logger.With().Str("component", "connection_manager").Logger(),
	}
}

// Init dials the configured backends. It is a no-op once the manager is ready.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateReady:
		return nil
	case StateClosed:
		return ErrManagerClosed
	}

	if m.cfg.RedisURL != "" {
		client, err := ConnectRedis(ctx, m.cfg.RedisURL, m.cfg.MaxRetries, m.cfg.RetryWait)
		if err != nil {
			return err
		}
		m.redis = client
		m.logger.Info().Msg("redis connection ready")
	}

	if m.cfg.NATSURL != "" {
		conn, err := ConnectNATS(ctx, m.cfg.NATSURL, m.cfg.MaxRetries, m.cfg.RetryWait,
			nats.Name(m.cfg.Name),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					m.logger.Warn().Err(err).Msg("nats disconnected")
				}
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				m.logger.Info().Msg("nats reconnected")
			}),
			nats.ClosedHandler(func(_ *nats.Conn) {
				m.logger.Debug().Msg("nats connection closed")
			}),
		)
		if err != nil {
			if m.redis != nil {
				_ = m.redis.Close()
				m.redis = nil
			}
			return err
		}
		m.nats = conn
		m.logger.Info().Msg("nats connection ready")
	}

	m.state = StateReady
	return nil
}

// State reports the current lifecycle stage.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Ready reports whether Init completed and Close has not been called.
func (m *Manager) Ready() bool {
	return m.State() == StateReady
}

// Redis returns the shared client, or nil when Redis is disabled or the manager is not ready.
func (m *Manager) Redis() *redis.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return nil
	}
	return m.redis
}

// NATS returns the shared connection, or nil when NATS is disabled or the manager is not ready.
func (m *Manager) NATS() *nats.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return nil
	}
	return m.nats
}

// Close tears down every open connection. The manager cannot be reused afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return nil
	}
	m.state = StateClosed

	var errs []error
	if m.nats != nil {
		if err := m.nats.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
		m.nats = nil
	}
	if m.redis != nil {
		if err := m.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		m.redis = nil
	}

	return errors.Join(errs...)
}
