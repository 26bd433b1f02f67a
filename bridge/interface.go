package bridge

import (
	"context"
	"io"
	"time"
)

// Executor is the command surface the tool-dispatch layer consumes.
type Executor interface {
	Connect(ctx context.Context) error
	EnsureConnected(ctx context.Context) error
	Exec(ctx context.Context, command string, timeout time.Duration) (CommandOutput, error)
	EnsureElevated(ctx context.Context) error
	IsElevated() bool
	SudoPassword() string
	HasSuPassword() bool
	Close()
}

// FileTransfer is the file surface backed by the SFTP subsystem on the same
// managed session.
type FileTransfer interface {
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
	Fetch(ctx context.Context, remotePath string) (io.ReadCloser, error)
}

// Connection is the full bridge surface.
type Connection interface {
	Executor
	FileTransfer
}

var _ Connection = (*Manager)(nil)
