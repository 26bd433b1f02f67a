package bridge

// CommandOutput holds the collected result of one remote command.
type CommandOutput struct {
	// Stdout is the collected standard output.
	Stdout string

	// Stderr is the collected standard error.
	Stderr string

	// ExitCode is the remote exit status, or nil when the transport did
	// not report one. Commands run over the elevated PTY shell always
	// report 0: the PTY gives no structured exit status, so success is
	// assumed (known limitation).
	ExitCode *int
}

// Success reports whether the command succeeded. An absent exit code is
// treated optimistically as success.
func (o CommandOutput) Success() bool {
	return o.ExitCode == nil || *o.ExitCode == 0
}

// Combined returns stdout and stderr joined with a newline, skipping
// whichever is empty.
func (o CommandOutput) Combined() string {
	switch {
	case o.Stderr == "":
		return o.Stdout
	case o.Stdout == "":
		return o.Stderr
	default:
		return o.Stdout + "\n" + o.Stderr
	}
}

func exitCode(code int) *int {
	return &code
}
