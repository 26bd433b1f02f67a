package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces the environment overrides, e.g. SSH_BRIDGE_HOST.
const envPrefix = "SSH_BRIDGE_"

// Loader assembles a Config from an optional YAML file plus environment
// overrides. Flag handling sits above this, in the CLI layer.
type Loader struct {
	filePath string
}

// NewLoader creates a loader. filePath may be empty, in which case only
// environment values and defaults apply.
func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

// Load reads the file (when given), applies environment overrides and
// defaults. Validation is left to the caller so flag values can still be
// merged in on top.
func (l *Loader) Load() (*Config, error) {
	cfg := &Config{}

	if l.filePath != "" {
		content, err := os.ReadFile(l.filePath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %q", l.filePath)
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal config YAML from %q", l.filePath)
		}
	}

	ApplyEnv(cfg)
	SetDefaults(cfg)
	return cfg, nil
}

// ApplyEnv overrides set fields from SSH_BRIDGE_* environment variables.
func ApplyEnv(cfg *Config) {
	setString(&cfg.Host, "HOST")
	setInt(&cfg.Port, "PORT")
	setString(&cfg.User, "USER")
	setString(&cfg.Password, "PASSWORD")
	setString(&cfg.KeyFile, "KEY")
	setString(&cfg.SuPassword, "SU_PASSWORD")
	setString(&cfg.SudoPassword, "SUDO_PASSWORD")
	setInt64(&cfg.TimeoutMs, "TIMEOUT")
	setString(&cfg.MaxChars, "MAX_CHARS")
	setBool(&cfg.DisableSudo, "DISABLE_SUDO")
	setString(&cfg.LogDir, "LOG_DIR")
	setBool(&cfg.Verbose, "VERBOSE")
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, name string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, name string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
