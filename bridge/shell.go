package bridge

import (
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// remoteShell is the narrow seam over a PTY-backed shell channel: bytes go
// in via Write, output arrives as unframed chunks on Chunks. The elevation
// engine and the elevated command path only ever talk to this interface, so
// the scripted-su mechanism can be swapped out without touching callers.
type remoteShell interface {
	// Write sends raw bytes to the shell's stdin.
	Write(p []byte) error

	// Chunks delivers output as it arrives. The channel is closed when the
	// underlying stream ends.
	Chunks() <-chan []byte

	// Close signals end-of-input and tears the channel down. Safe to call
	// more than once.
	Close() error
}

// sshShell runs a remote interactive shell on its own SSH session with a
// requested PTY. A pump goroutine turns blocking stdout reads into chunk
// deliveries so callers can poll with deadlines.
type sshShell struct {
	session *ssh.Session
	stdin   io.WriteCloser
	chunks  chan []byte
}

const (
	ptyTerm = "xterm"
	ptyCols = 80
	ptyRows = 24
)

// startShell opens an interactive shell with a PTY on a fresh session.
func startShell(session *ssh.Session) (*sshShell, error) {
	// No special terminal modes; the scripted su exchange needs none.
	if err := session.RequestPty(ptyTerm, ptyRows, ptyCols, ssh.TerminalModes{}); err != nil {
		_ = session.Close()
		return nil, errors.Wrap(err, "failed to request PTY")
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, errors.Wrap(err, "failed to get stdin pipe")
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, errors.Wrap(err, "failed to get stdout pipe")
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		return nil, errors.Wrap(err, "failed to start shell")
	}

	sh := &sshShell{
		session: session,
		stdin:   stdin,
		chunks:  make(chan []byte, 16),
	}
	go sh.pump(stdout)

	return sh, nil
}

func (s *sshShell) pump(r io.Reader) {
	defer close(s.chunks)

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

func (s *sshShell) Write(p []byte) error {
	_, err := s.stdin.Write(p)
	return err
}

func (s *sshShell) Chunks() <-chan []byte {
	return s.chunks
}

func (s *sshShell) Close() error {
	_ = s.stdin.Close()
	return s.session.Close()
}
