package bridge

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// execResponse scripts the outcome of one exec-channel command.
type execResponse struct {
	stdout   string
	stderr   string
	exit     uint32
	delay    time.Duration
	noStatus bool
}

// testSSHServer is a minimal in-process SSH server. It answers exec requests
// from a scripted response table, emulates an interactive root shell behind
// `su -`, and serves the real filesystem over the sftp subsystem.
type testSSHServer struct {
	t        *testing.T
	listener net.Listener
	config   *ssh.ServerConfig

	suPassword string

	mu             sync.Mutex
	execCmds       []string
	responses      map[string]execResponse
	shellResponses map[string]string
}

func startTestSSHServer(t *testing.T, password string, authorizedKey ssh.PublicKey) *testSSHServer {
	t.Helper()

	s := &testSSHServer{
		t:              t,
		responses:      map[string]execResponse{},
		shellResponses: map[string]string{},
	}

	config := &ssh.ServerConfig{}
	if password != "" {
		config.PasswordCallback = func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("wrong password for %q", meta.User())
		}
	}
	if authorizedKey != nil {
		config.PublicKeyCallback = func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorizedKey.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown key for %q", meta.User())
		}
	}

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(hostKey)
	require.NoError(t, err)
	config.AddHostKey(signer)
	s.config = config

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.listener = listener
	t.Cleanup(func() { _ = listener.Close() })

	go s.acceptLoop()
	return s
}

// clientKeyPair generates a fresh key for tests: the PEM-encoded private key
// for the client side and the public key to authorize on the server side.
func clientKeyPair(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(block)), signer.PublicKey()
}

func (s *testSSHServer) clientConfig(password string) ConnectionConfig {
	host, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	require.NoError(s.t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(s.t, err)

	return ConnectionConfig{Host: host, Port: port, Username: "tester", Password: password}
}

func (s *testSSHServer) setExecResponse(command string, resp execResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[command] = resp
}

func (s *testSSHServer) setShellResponse(command, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shellResponses[command] = output
}

func (s *testSSHServer) execCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.execCmds...)
}

// waitForExec polls until a recorded exec command contains substr.
func (s *testSSHServer) waitForExec(substr string, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, cmd := range s.execCommands() {
			if strings.Contains(cmd, substr) {
				return cmd, true
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return "", false
}

func (s *testSSHServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *testSSHServer) handleConn(conn net.Conn) {
	serverConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer serverConn.Close()

	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *testSSHServer) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			s.recordExec(payload.Command)
			s.runExec(payload.Command, ch)
			return

		case "pty-req":
			_ = req.Reply(true, nil)

		case "shell":
			_ = req.Reply(true, nil)
			s.runShell(ch)
			return

		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			s.runSFTP(ch)
			return

		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (s *testSSHServer) recordExec(command string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execCmds = append(s.execCmds, command)
}

func (s *testSSHServer) runExec(command string, ch ssh.Channel) {
	s.mu.Lock()
	resp := s.responses[command]
	s.mu.Unlock()

	if resp.delay > 0 {
		time.Sleep(resp.delay)
	}
	if resp.stdout != "" {
		_, _ = io.WriteString(ch, resp.stdout)
	}
	if resp.stderr != "" {
		_, _ = io.WriteString(ch.Stderr(), resp.stderr)
	}
	if !resp.noStatus {
		status := struct{ Status uint32 }{resp.exit}
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(&status))
	}
}

// runShell emulates an interactive shell with scripted su semantics: "su -"
// asks for the password, the right password lands on a root prompt, and
// commands typed at the root prompt are echoed then answered from the
// response table.
func (s *testSSHServer) runShell(ch ssh.Channel) {
	_, _ = io.WriteString(ch, "$ ")

	scanner := bufio.NewScanner(ch)
	suRequested := false
	elevated := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":

		case !elevated && line == "su -":
			suRequested = true
			_, _ = io.WriteString(ch, "Password: ")

		case !elevated && suRequested:
			if s.suPassword != "" && line == s.suPassword {
				elevated = true
				_, _ = io.WriteString(ch, "\r\n# ")
			} else {
				suRequested = false
				_, _ = io.WriteString(ch, "\r\nsu: Authentication failure\r\n$ ")
			}

		case elevated:
			s.mu.Lock()
			out := s.shellResponses[line]
			s.mu.Unlock()

			reply := line + "\r\n"
			if out != "" {
				reply += strings.ReplaceAll(strings.TrimSuffix(out, "\n"), "\n", "\r\n") + "\r\n"
			}
			_, _ = io.WriteString(ch, reply+"# ")

		default:
			_, _ = io.WriteString(ch, line+"\r\n$ ")
		}
	}
}

func (s *testSSHServer) runSFTP(ch ssh.Channel) {
	server, err := sftp.NewServer(ch)
	if err != nil {
		return
	}
	_ = server.Serve()
	_ = server.Close()
}
