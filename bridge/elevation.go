package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mensylisir/sshbridge/common"
	"github.com/mensylisir/sshbridge/logger"
)

// suCommand starts the scripted root login on the interactive shell.
const suCommand = "su -\n"

// shellReadPoll bounds a single wait for shell output so the elevation
// deadline is re-evaluated periodically instead of blocking on one read.
const shellReadPoll = 500 * time.Millisecond

// shellOpener opens a fresh PTY-backed shell channel on the live session.
type shellOpener func(ctx context.Context) (remoteShell, error)

// ElevationEngine drives the interactive `su -` login and owns the
// resulting privileged shell for reuse. At most one elevated shell exists;
// it is borrowed (taken, then put back) for the duration of each command so
// use is exclusive.
type ElevationEngine struct {
	password string
	open     shellOpener
	timeout  time.Duration
	readPoll time.Duration

	mu    sync.Mutex
	shell remoteShell

	elevated atomic.Bool
}

func newElevationEngine(password string, open shellOpener) *ElevationEngine {
	return &ElevationEngine{
		password: password,
		open:     open,
		timeout:  common.ElevationTimeout,
		readPoll: shellReadPoll,
	}
}

// IsElevated is the cheap fast-path check; it is kept consistent with the
// presence of the shell.
func (e *ElevationEngine) IsElevated() bool {
	return e.elevated.Load()
}

// hasShell reports whether the elevated shell is currently in its slot
// (false while a command has it borrowed).
func (e *ElevationEngine) hasShell() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shell != nil
}

// take borrows the elevated shell for exclusive use. The caller must hand
// it back with put, on success and on failure alike, so the slot is never
// left permanently empty on a recoverable error.
func (e *ElevationEngine) take() (remoteShell, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	shell := e.shell
	e.shell = nil
	return shell, shell != nil
}

// put returns a borrowed shell to the slot.
func (e *ElevationEngine) put(shell remoteShell) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shell = shell
}

// EnsureElevated is a no-op when a live elevated shell exists. Otherwise it
// opens a fresh PTY shell, scripts the `su -` login, and on success stores
// the shell for reuse. On failure no partial shell is retained and the
// elevated flag stays false.
func (e *ElevationEngine) EnsureElevated(ctx context.Context) error {
	if e.elevated.Load() && e.hasShell() {
		return nil
	}

	if e.password == "" {
		return newElevationError("No su password configured")
	}

	shell, err := e.open(ctx)
	if err != nil {
		return wrapElevationError(err, "failed to open channel")
	}
	logger.Log.Debug("Opened channel for su elevation")

	if err := e.elevate(ctx, shell); err != nil {
		e.elevated.Store(false)
		_ = shell.Close()
		return err
	}

	e.put(shell)
	e.elevated.Store(true)
	logger.Log.Info("Successfully elevated to root via su")
	return nil
}

// elevate runs the scripted login on an open shell: write `su -`, answer
// the password prompt, succeed on the root prompt marker.
func (e *ElevationEngine) elevate(ctx context.Context, shell remoteShell) error {
	if err := shell.Write([]byte(suCommand)); err != nil {
		return wrapElevationError(err, "failed to send su command")
	}

	scanner := &suScanner{}
	deadline := time.Now().Add(e.timeout)

	for {
		if time.Now().After(deadline) {
			return newElevationError("su elevation timed out")
		}

		select {
		case <-ctx.Done():
			return wrapElevationError(ctx.Err(), "su elevation cancelled")

		case chunk, ok := <-shell.Chunks():
			if !ok {
				return newElevationError("Channel closed before elevation completed")
			}

			switch scanner.Feed(string(chunk)) {
			case suEventPasswordPrompt:
				logger.Log.Debug("Password prompt detected, sending password...")
				if err := shell.Write([]byte(e.password + "\n")); err != nil {
					return wrapElevationError(err, "failed to send password")
				}
			case suEventElevated:
				logger.Log.Debug("Root prompt detected, elevation successful")
				return nil
			case suEventFailed:
				return newElevationError("su authentication failed: %s", scanner.Transcript())
			}

		case <-time.After(e.readPoll):
			// No output this poll; loop to re-check the deadline.
		}
	}
}

// teardown closes any stored shell, politely signaling end-of-input and
// ignoring failures, then clears the elevated flag.
func (e *ElevationEngine) teardown() {
	if shell, ok := e.take(); ok {
		if err := shell.Close(); err != nil {
			logger.Log.Debugf("Elevated shell close failed: %v", err)
		}
	}
	e.elevated.Store(false)
}
