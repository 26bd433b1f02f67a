package bridge

import (
	"net"
	"strconv"

	"github.com/mensylisir/sshbridge/common"
)

// ConnectionConfig describes the one remote host the bridge talks to.
// It is immutable after construction; the connection manager owns it.
type ConnectionConfig struct {
	// Host is the remote hostname or IP address.
	Host string

	// Port is the SSH port. Zero means the default (22).
	Port int

	// Username authenticates the transport session.
	Username string

	// Password enables password authentication. Mutually exclusive with
	// PrivateKey.
	Password string

	// PrivateKey is PEM-encoded private key material (content, not a
	// file path). Mutually exclusive with Password.
	PrivateKey string

	// SuPassword, when set, enables scripted `su -` elevation to root.
	SuPassword string

	// SudoPassword, when set, is piped to sudo for wrapped commands.
	SudoPassword string
}

func (c ConnectionConfig) validate() error {
	if c.Host == "" {
		return newInvalidParamsError("no host specified for SSH connection")
	}
	if c.Username == "" {
		return newInvalidParamsError("no username specified for SSH connection")
	}
	if c.Password == "" && c.PrivateKey == "" {
		return newAuthError("No authentication method available (require password or private key)")
	}
	if c.Password != "" && c.PrivateKey != "" {
		return newInvalidParamsError("password and private key authentication are mutually exclusive")
	}
	return nil
}

func (c ConnectionConfig) port() int {
	if c.Port <= 0 {
		return common.DefaultSSHPort
	}
	return c.Port
}

func (c ConnectionConfig) endpoint() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.port()))
}
