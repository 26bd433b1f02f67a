package bridge

import (
	"fmt"
	"strings"
)

// SanitizeCommand trims surrounding whitespace and enforces the length
// bound. maxChars of 0 means unlimited. The trimmed command is returned;
// an empty or too-long command yields an invalid-params error before any
// remote call is made.
func SanitizeCommand(command string, maxChars int) (string, error) {
	trimmed := strings.TrimSpace(command)

	if trimmed == "" {
		return "", newInvalidParamsError("Command cannot be empty")
	}

	if maxChars > 0 && len(trimmed) > maxChars {
		return "", newInvalidParamsError("Command is too long (max %d characters, got %d)", maxChars, len(trimmed))
	}

	return trimmed, nil
}

// EscapeForShell makes s safe inside a single-quoted POSIX shell fragment.
// Every single quote becomes '"'"' (close quoting, a double-quoted literal
// quote, reopen quoting). This is the sole escaping mechanism used for
// command text and for literals interpolated into generated shell lines.
func EscapeForShell(s string) string {
	return strings.ReplaceAll(s, "'", `'"'"'`)
}

// WrapSudoCommand wraps a command for privileged execution via sudo.
//
// Without a password the wrap is `sudo -n sh -c '<escaped>'`, which fails
// fast if the remote sudo configuration demands one. With a password, the
// password is piped to sudo's stdin via printf rather than driving an
// interactive prompt.
func WrapSudoCommand(command, password string) string {
	escaped := EscapeForShell(command)

	if password == "" {
		return fmt.Sprintf("sudo -n sh -c '%s'", escaped)
	}

	escapedPassword := EscapeForShell(password)
	return fmt.Sprintf(`printf '%%s\n' '%s' | sudo -p "" -S sh -c '%s'`, escapedPassword, escaped)
}

// IsValidPassword reports whether p is usable: non-empty after trimming and
// free of null bytes.
func IsValidPassword(p string) bool {
	return strings.TrimSpace(p) != "" && !strings.ContainsRune(p, 0)
}

// SanitizePassword trims whitespace and returns "" for blank passwords so
// empty configuration values read as unset.
func SanitizePassword(p string) string {
	return strings.TrimSpace(p)
}
