package bridge

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/mensylisir/sshbridge/common"
	"github.com/mensylisir/sshbridge/logger"
)

// Exec runs a command on the remote host and collects its output under the
// given timeout.
//
// When the elevated su shell is live, the command runs inside it and the
// output is recovered by scanning for the returning root prompt. Otherwise a
// fresh exec channel is opened and the command runs non-interactively with a
// real exit status.
func (m *Manager) Exec(ctx context.Context, command string, timeout time.Duration) (CommandOutput, error) {
	if err := m.EnsureConnected(ctx); err != nil {
		return CommandOutput{}, err
	}

	if m.IsElevated() && m.elevation.hasShell() {
		logger.Log.Debug("Using elevated su shell for command execution")
		return m.execViaShell(ctx, command, timeout)
	}

	logger.Log.Debug("Using normal exec channel for command execution")
	return m.execViaSession(ctx, command, timeout)
}

// execViaShell writes the command into the borrowed elevated shell and
// accumulates output until the root prompt reappears. The shell goes back
// into its slot afterward, success or failure, so later commands can reuse
// it. The PTY reports no structured exit status, so the exit code is an
// optimistic 0.
func (m *Manager) execViaShell(ctx context.Context, command string, timeout time.Duration) (CommandOutput, error) {
	shell, ok := m.elevation.take()
	if !ok {
		return CommandOutput{}, newConnectionError("no elevated shell available")
	}
	defer m.elevation.put(shell)

	if err := shell.Write([]byte(command + "\n")); err != nil {
		return CommandOutput{}, wrapConnectionError(err, "failed to send command")
	}

	var buffer strings.Builder
	deadline := time.Now().Add(timeout)

	for {
		if time.Now().After(deadline) {
			return CommandOutput{}, newTimeoutError(timeout.Milliseconds())
		}

		select {
		case <-ctx.Done():
			return CommandOutput{}, wrapConnectionError(ctx.Err(), "command execution cancelled")

		case chunk, chOpen := <-shell.Chunks():
			if !chOpen {
				return CommandOutput{}, newConnectionError("Channel closed during command execution")
			}
			buffer.Write(chunk)

			// The returning prompt marks completion. Heuristic: a '#'
			// inside legitimate output is misread as the prompt.
			if strings.Contains(buffer.String(), "#") {
				return CommandOutput{
					Stdout:   promptOutput(buffer.String()),
					ExitCode: exitCode(0),
				}, nil
			}

		case <-time.After(m.elevation.readPoll):
			// No output this poll; loop to re-check the deadline.
		}
	}
}

// execViaSession runs the command on a fresh exec channel. The transport
// demultiplexes extended-data stream 1 into stderr; the exit status arrives
// with channel close. On timeout the wait is abandoned, a best-effort
// remote abort is fired off detached, and the caller gets a timeout error.
func (m *Manager) execViaSession(ctx context.Context, command string, timeout time.Duration) (CommandOutput, error) {
	session, err := m.openSession()
	if err != nil {
		return CommandOutput{}, err
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(command); err != nil {
		_ = session.Close()
		return CommandOutput{}, wrapConnectionError(err, "failed to exec command")
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- session.Wait()
	}()

	select {
	case waitErr := <-waitDone:
		_ = session.Close()
		return commandResult(stdout.String(), stderr.String(), waitErr)

	case <-ctx.Done():
		_ = session.Close()
		return CommandOutput{}, wrapConnectionError(ctx.Err(), "command execution cancelled")

	case <-time.After(timeout):
		logger.Log.Warnf("Command timed out after %dms, attempting abort", timeout.Milliseconds())
		_ = session.Close()
		go m.abortCommand(command)
		return CommandOutput{}, newTimeoutError(timeout.Milliseconds())
	}
}

// commandResult translates a session wait result into CommandOutput. A
// missing exit status (server sent none) leaves ExitCode nil, which callers
// treat optimistically as success.
func commandResult(stdout, stderr string, waitErr error) (CommandOutput, error) {
	output := CommandOutput{Stdout: stdout, Stderr: stderr}

	switch e := waitErr.(type) {
	case nil:
		output.ExitCode = exitCode(0)
	case *ssh.ExitError:
		output.ExitCode = exitCode(e.ExitStatus())
	case *ssh.ExitMissingError:
		// Channel closed without a status message.
	default:
		return output, wrapConnectionError(waitErr, "command wait failed")
	}

	logger.Log.Debugf("Command completed: exit_code=%v, stdout_len=%d, stderr_len=%d",
		output.ExitCode, len(output.Stdout), len(output.Stderr))
	return output, nil
}

// abortCommand makes a best-effort attempt to kill the remote processes of
// a timed-out command. It runs detached with its own short deadline; its
// outcome is logged and never escalated to the caller.
func (m *Manager) abortCommand(command string) {
	session, err := m.openSession()
	if err != nil {
		logger.Log.Errorf("Failed to open channel for abort: %v", err)
		return
	}
	defer session.Close()

	abortCmd := fmt.Sprintf("timeout 3s pkill -f '%s' 2>/dev/null || true", EscapeForShell(command))
	logger.Log.Debugf("Sending abort command: %s", abortCmd)

	if err := session.Start(abortCmd); err != nil {
		logger.Log.Errorf("Failed to exec abort command: %v", err)
		return
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- session.Wait()
	}()

	select {
	case <-waitDone:
	case <-time.After(common.AbortWaitTimeout):
	}

	logger.Log.Debug("Abort command completed")
}
