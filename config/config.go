package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mensylisir/sshbridge/bridge"
)

// Config is the raw bridge configuration as assembled from file, environment
// and flags, before validation. Field precedence is flags > environment >
// file > defaults.
type Config struct {
	// Host is the remote host to connect to.
	Host string `yaml:"host"`

	// Port is the SSH port (default 22).
	Port int `yaml:"port,omitempty"`

	// User is the SSH username.
	User string `yaml:"user"`

	// Password enables password authentication (alternative to KeyFile).
	Password string `yaml:"password,omitempty"`

	// KeyFile is the path to a private key file (alternative to Password).
	// The file is read at finalization; the core only ever sees content.
	KeyFile string `yaml:"keyFile,omitempty"`

	// SuPassword enables `su -` elevation to root.
	SuPassword string `yaml:"suPassword,omitempty"`

	// SudoPassword is piped to sudo for wrapped commands.
	SudoPassword string `yaml:"sudoPassword,omitempty"`

	// TimeoutMs bounds a single command execution, in milliseconds.
	TimeoutMs int64 `yaml:"timeoutMs,omitempty"`

	// MaxChars bounds command length. "none", "0" or a negative value
	// disables the limit; empty means the default (1000).
	MaxChars string `yaml:"maxChars,omitempty"`

	// DisableSudo removes the sudo-exec tool from the exposed surface.
	DisableSudo bool `yaml:"disableSudo,omitempty"`

	// LogDir, when set, enables rotating file logs under that directory.
	LogDir string `yaml:"logDir,omitempty"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose,omitempty"`
}

// Validate checks the assembled configuration and reports every problem at
// once.
func (c *Config) Validate() error {
	var problems []string

	if c.Host == "" {
		problems = append(problems, "missing required host")
	}
	if c.User == "" {
		problems = append(problems, "missing required user")
	}
	if c.Password == "" && c.KeyFile == "" {
		problems = append(problems, "must provide either a password or a key file")
	}
	if c.KeyFile != "" {
		if _, err := os.Stat(c.KeyFile); err != nil {
			problems = append(problems, "SSH key file not found: "+c.KeyFile)
		}
	}

	if len(problems) > 0 {
		return errors.Errorf("Configuration error:\n%s", strings.Join(problems, "\n"))
	}
	return nil
}

// Timeout returns the command execution timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// MaxCommandChars returns the parsed command length bound, 0 for unlimited.
func (c *Config) MaxCommandChars() int {
	return ParseMaxChars(c.MaxChars)
}

// ConnectionConfig produces the immutable record consumed by the connection
// manager, reading key material from disk and sanitizing passwords.
func (c *Config) ConnectionConfig() (bridge.ConnectionConfig, error) {
	cc := bridge.ConnectionConfig{
		Host:         c.Host,
		Port:         c.Port,
		Username:     c.User,
		Password:     bridge.SanitizePassword(c.Password),
		SuPassword:   bridge.SanitizePassword(c.SuPassword),
		SudoPassword: bridge.SanitizePassword(c.SudoPassword),
	}

	if c.KeyFile != "" && cc.Password == "" {
		content, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return bridge.ConnectionConfig{}, errors.Wrapf(err, "failed to read key file %q", c.KeyFile)
		}
		cc.PrivateKey = string(content)
	}

	return cc, nil
}
