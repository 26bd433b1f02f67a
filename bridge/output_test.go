package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandOutputSuccess(t *testing.T) {
	assert.True(t, CommandOutput{ExitCode: exitCode(0)}.Success())
	assert.True(t, CommandOutput{}.Success(), "missing exit code is treated as success")
	assert.False(t, CommandOutput{ExitCode: exitCode(1)}.Success())
	assert.False(t, CommandOutput{ExitCode: exitCode(127)}.Success())
}

func TestCommandOutputCombined(t *testing.T) {
	tests := []struct {
		name     string
		output   CommandOutput
		expected string
	}{
		{
			name:     "stdout only",
			output:   CommandOutput{Stdout: "out"},
			expected: "out",
		},
		{
			name:     "stderr only",
			output:   CommandOutput{Stderr: "err"},
			expected: "err",
		},
		{
			name:     "both",
			output:   CommandOutput{Stdout: "out", Stderr: "err"},
			expected: "out\nerr",
		},
		{
			name:     "neither",
			output:   CommandOutput{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.output.Combined())
		})
	}
}
