package common

import "time"

const (
	AppName = "sshbridge"
	Version = "1.4.0"
)

// Log field keys shared by all components.
const (
	ComponentName = "Component"
	RequestID     = "Request"
	ToolName      = "Tool"
	HostName      = "Host"
)

const (
	// DefaultSSHPort is used when no port is configured.
	DefaultSSHPort = 22
	// DefaultCommandTimeout bounds a single remote command.
	DefaultCommandTimeout = 60 * time.Second
	// DefaultMaxCommandChars bounds the length of a submitted command.
	// Zero means unlimited.
	DefaultMaxCommandChars = 1000
	// ConnectTimeout bounds connection establishment including the
	// SSH handshake and authentication.
	ConnectTimeout = 30 * time.Second
	// ElevationTimeout bounds a full su elevation attempt.
	ElevationTimeout = 10 * time.Second
	// AbortWaitTimeout bounds the best-effort remote abort after a
	// command timeout.
	AbortWaitTimeout = 5 * time.Second
)
