package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/mensylisir/sshbridge/logger"
)

// connectPollInterval is how often a waiting caller re-checks a connection
// attempt held by another goroutine.
const connectPollInterval = 100 * time.Millisecond

// Manager owns the one persistent SSH session. It guards the session handle
// behind a mutex, collapses concurrent connection attempts into a single
// handshake, and carries the elevation engine for the session's lifetime.
//
// Invariant: no session means no elevated shell. Close restores both to
// absent and is idempotent.
type Manager struct {
	cfg    ConnectionConfig
	dialer Dialer

	mu      sync.Mutex
	client  *ssh.Client
	sftpCli *sftp.Client

	connecting atomic.Bool

	elevation *ElevationEngine
}

// NewManager creates a manager for the given host. No connection is made
// until Connect or EnsureConnected is called.
func NewManager(cfg ConnectionConfig) (*Manager, error) {
	return newManager(cfg, NewDialer())
}

func newManager(cfg ConnectionConfig, dialer Dialer) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
	}
	m.elevation = newElevationEngine(cfg.SuPassword, m.openShell)
	return m, nil
}

// IsConnected reports whether a live session handle is stored.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil
}

// Connect establishes the SSH session. It is a no-op when already
// connected. When another goroutine is mid-connect, the caller waits for
// that attempt and shares its outcome rather than opening a duplicate
// session.
func (m *Manager) Connect(ctx context.Context) error {
	if m.IsConnected() {
		logger.Log.Debug("Already connected to SSH server")
		return nil
	}

	if !m.connecting.CompareAndSwap(false, true) {
		logger.Log.Debug("Another connection attempt in progress, waiting...")
		for m.connecting.Load() {
			select {
			case <-ctx.Done():
				return wrapConnectionError(ctx.Err(), "wait for concurrent connection attempt cancelled")
			case <-time.After(connectPollInterval):
			}
		}
		if m.IsConnected() {
			return nil
		}
		return newConnectionError("Connection failed by another task")
	}

	err := m.doConnect(ctx)
	m.connecting.Store(false)
	return err
}

func (m *Manager) doConnect(ctx context.Context) error {
	logger.Log.Infof("Connecting to SSH server %s...", m.cfg.endpoint())

	client, err := m.dialer.Dial(ctx, m.cfg)
	if err != nil {
		logger.Log.Errorf("SSH connection failed: %v", err)
		return err
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	logger.Log.Infof("Successfully connected to %s@%s", m.cfg.Username, m.cfg.endpoint())

	// Opportunistic elevation: a failure degrades to unprivileged
	// execution, it never fails the connect.
	if m.cfg.SuPassword != "" {
		logger.Log.Debug("su password configured, attempting elevation...")
		if err := m.EnsureElevated(ctx); err != nil {
			logger.Log.Warnf("Failed to elevate to root: %v. Commands will run as normal user.", err)
		}
	}

	return nil
}

// EnsureConnected connects only when no session exists.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}
	return m.Connect(ctx)
}

// EnsureElevated brings up the su shell if it is not already live.
func (m *Manager) EnsureElevated(ctx context.Context) error {
	return m.elevation.EnsureElevated(ctx)
}

// IsElevated reports whether the elevated shell is established.
func (m *Manager) IsElevated() bool {
	return m.elevation.IsElevated()
}

// SudoPassword returns the configured sudo password, or "".
func (m *Manager) SudoPassword() string {
	return m.cfg.SudoPassword
}

// HasSuPassword reports whether su elevation is configured.
func (m *Manager) HasSuPassword() bool {
	return m.cfg.SuPassword != ""
}

// openSession opens a new multiplexed channel over the current session.
func (m *Manager) openSession() (*ssh.Session, error) {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return nil, newConnectionError("SSH connection not established")
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, wrapConnectionError(err, "failed to open channel")
	}
	return session, nil
}

// openShell opens a fresh PTY-backed interactive shell channel.
func (m *Manager) openShell(ctx context.Context) (remoteShell, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapConnectionError(err, "shell open cancelled")
	}

	session, err := m.openSession()
	if err != nil {
		return nil, err
	}

	shell, err := startShell(session)
	if err != nil {
		return nil, wrapConnectionError(err, "failed to start interactive shell")
	}
	return shell, nil
}

// Close tears down the elevated shell, the SFTP client, and the session, in
// that order. Teardown failures are logged, never returned; Close is
// idempotent.
func (m *Manager) Close() {
	m.elevation.teardown()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sftpCli != nil {
		if err := m.sftpCli.Close(); err != nil {
			logger.Log.Debugf("SFTP client close failed: %v", err)
		}
		m.sftpCli = nil
	}

	if m.client != nil {
		if err := m.client.Close(); err != nil {
			logger.Log.Debugf("SSH client close failed: %v", err)
		}
		m.client = nil
		logger.Log.Info("SSH connection closed")
	}
}
