package bridge

import (
	"context"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/mensylisir/sshbridge/common"
)

// noDeadline clears a connection deadline.
var noDeadline = time.Time{}

// deadlineFrom returns now+d, tightened to the context deadline when that
// comes sooner.
func deadlineFrom(ctx context.Context, d time.Duration) time.Time {
	deadline := time.Now().Add(d)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

// Dialer establishes an authenticated transport session. It exists as a
// seam so the connection manager can be exercised without a live server.
type Dialer interface {
	Dial(ctx context.Context, cfg ConnectionConfig) (*ssh.Client, error)
}

// sshDialer is the default Dialer: TCP plus SSH handshake under the fixed
// connection-establishment deadline.
type sshDialer struct{}

// NewDialer returns the default SSH dialer.
func NewDialer() Dialer {
	return &sshDialer{}
}

func (d *sshDialer) Dial(ctx context.Context, cfg ConnectionConfig) (*ssh.Client, error) {
	methods, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:    cfg.Username,
		Auth:    methods,
		Timeout: common.ConnectTimeout,
		// Host keys are accepted unverified. This is a deliberate
		// simplification for automated bridging, not a security feature.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	endpoint := cfg.endpoint()

	conn, err := net.DialTimeout("tcp", endpoint, common.ConnectTimeout)
	if err != nil {
		return nil, classifyDialError(err, endpoint)
	}

	// Bound the SSH handshake by the same establishment deadline; cleared
	// once the session is up.
	if err := conn.SetDeadline(deadlineFrom(ctx, common.ConnectTimeout)); err != nil {
		_ = conn.Close()
		return nil, wrapConnectionError(err, "failed to arm handshake deadline for %s", endpoint)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, endpoint, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, classifyDialError(err, endpoint)
	}

	if err := conn.SetDeadline(noDeadline); err != nil {
		_ = sshConn.Close()
		return nil, wrapConnectionError(err, "failed to clear handshake deadline for %s", endpoint)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// classifyDialError maps transport failures onto the typed taxonomy:
// rejected credentials surface as authentication errors, everything else as
// connection errors.
func classifyDialError(err error, endpoint string) *Error {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "permission denied") {
		return wrapAuthError(err, "server %s rejected the configured credentials", endpoint)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return wrapConnectionError(err, "connection to %s timed out after %s", endpoint, common.ConnectTimeout)
	}
	return wrapConnectionError(err, "could not establish connection to %s", endpoint)
}
