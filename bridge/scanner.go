package bridge

import "strings"

// suEvent is the outcome of feeding output into the su prompt scanner.
type suEvent int

const (
	// suEventMore means no terminal condition yet; keep reading.
	suEventMore suEvent = iota
	// suEventPasswordPrompt means the password prompt was detected and the
	// caller should write the elevation password now.
	suEventPasswordPrompt
	// suEventElevated means the root prompt appeared after the password.
	suEventElevated
	// suEventFailed means a failure marker appeared in the output.
	suEventFailed
)

var suFailureMarkers = []string{
	"authentication failure",
	"incorrect password",
	"su: failed",
	"su: authentication",
}

// suScanner detects the stages of a scripted `su` login inside an unframed
// byte stream. The protocol is heuristic: any "password" substring is the
// prompt, any '#' after the password is the root prompt. A '#' in legitimate
// output would be misread, which is why the scanner is kept behind the
// remoteShell seam rather than spread through callers.
//
// The buffer grows across feeds (so detection does not depend on chunk
// boundaries) and is cleared exactly once: after the password prompt, so the
// prompt text itself cannot satisfy the success scan.
type suScanner struct {
	buf          strings.Builder
	passwordSent bool
}

// Feed appends a chunk of shell output and reports the current state.
func (s *suScanner) Feed(text string) suEvent {
	s.buf.WriteString(text)
	accumulated := s.buf.String()
	lowered := strings.ToLower(accumulated)

	if !s.passwordSent && strings.Contains(lowered, "password") {
		s.passwordSent = true
		s.buf.Reset()
		return suEventPasswordPrompt
	}

	if s.passwordSent && strings.Contains(accumulated, "#") {
		return suEventElevated
	}

	for _, marker := range suFailureMarkers {
		if strings.Contains(lowered, marker) {
			return suEventFailed
		}
	}

	return suEventMore
}

// Transcript returns the accumulated output for failure diagnostics.
func (s *suScanner) Transcript() string {
	return s.buf.String()
}

// promptOutput derives a command's result text from the elevated shell's
// accumulated output: the first line is the echoed command and the last line
// is the returned prompt, so both are dropped. A trailing newline is kept on
// non-empty output.
func promptOutput(buffer string) string {
	lines := strings.Split(strings.TrimSuffix(buffer, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	if len(lines) <= 2 {
		return ""
	}

	output := strings.Join(lines[1:len(lines)-1], "\n")
	if output == "" {
		return ""
	}
	return output + "\n"
}
