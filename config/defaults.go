package config

import (
	"strconv"
	"strings"

	"github.com/mensylisir/sshbridge/common"
)

const (
	// DefaultTimeoutMs is the default per-command timeout.
	DefaultTimeoutMs int64 = 60_000

	// DefaultMaxChars is the default command length bound.
	DefaultMaxChars = common.DefaultMaxCommandChars
)

// SetDefaults fills unset fields with their defaults.
func SetDefaults(cfg *Config) {
	if cfg.Port <= 0 {
		cfg.Port = common.DefaultSSHPort
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = DefaultTimeoutMs
	}
}

// ParseMaxChars parses the max-chars setting. "none" (case-insensitive),
// "0" and negative values disable the limit (returning 0); an empty or
// unparsable value yields the default.
func ParseMaxChars(value string) int {
	if value == "" {
		return DefaultMaxChars
	}

	if strings.EqualFold(strings.TrimSpace(value), "none") {
		return 0
	}

	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return DefaultMaxChars
	}
	if n <= 0 {
		return 0
	}
	return n
}
