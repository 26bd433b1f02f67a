package bridge

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"

	"github.com/mensylisir/sshbridge/logger"
)

// sftpClient lazily creates the SFTP subsystem client on the live session.
// It shares the session's lifecycle and is torn down by Close.
func (m *Manager) sftpClient() (*sftp.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil, newConnectionError("SSH connection not established")
	}

	if m.sftpCli == nil {
		client, err := sftp.NewClient(m.client)
		if err != nil {
			return nil, wrapConnectionError(err, "failed to create SFTP client")
		}
		m.sftpCli = client
	}

	return m.sftpCli, nil
}

// Upload copies a local file to the remote host, creating parent
// directories as needed and carrying the local file mode over.
func (m *Manager) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := m.EnsureConnected(ctx); err != nil {
		return err
	}

	client, err := m.sftpClient()
	if err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return newInvalidParamsError("failed to open local file %s: %v", localPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return newInvalidParamsError("failed to stat local file %s: %v", localPath, err)
	}
	if info.IsDir() {
		return newInvalidParamsError("%s is a directory; only single files can be uploaded", localPath)
	}

	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		logger.Log.Warnf("Failed to ensure remote directory %s exists (continuing): %v", path.Dir(remotePath), err)
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return wrapConnectionError(err, "failed to create remote file %s", remotePath)
	}
	defer dst.Close()

	if err := dst.Chmod(info.Mode().Perm()); err != nil {
		logger.Log.Warnf("Failed to chmod remote file %s: %v", remotePath, err)
	}

	if err := ctx.Err(); err != nil {
		return wrapConnectionError(err, "upload cancelled")
	}

	if _, err := io.Copy(dst, src); err != nil {
		return wrapConnectionError(err, "sftp copy from %s to %s failed", localPath, remotePath)
	}
	return nil
}

// Download copies a remote file to the local filesystem, creating local
// parent directories as needed.
func (m *Manager) Download(ctx context.Context, remotePath, localPath string) error {
	if err := m.EnsureConnected(ctx); err != nil {
		return err
	}

	src, err := m.Fetch(ctx, remotePath)
	if err != nil {
		return err
	}
	defer src.Close()

	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return newInvalidParamsError("failed to create local directory %s: %v", dir, err)
		}
	}

	dst, err := os.Create(localPath)
	if err != nil {
		return newInvalidParamsError("failed to create local file %s: %v", localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return wrapConnectionError(err, "sftp copy from %s to %s failed", remotePath, localPath)
	}
	return nil
}

// Fetch opens a remote file for streaming reads.
func (m *Manager) Fetch(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	if err := m.EnsureConnected(ctx); err != nil {
		return nil, err
	}

	client, err := m.sftpClient()
	if err != nil {
		return nil, err
	}

	file, err := client.Open(remotePath)
	if err != nil {
		return nil, wrapConnectionError(err, "failed to open remote file %s", remotePath)
	}

	if err := ctx.Err(); err != nil {
		_ = file.Close()
		return nil, wrapConnectionError(err, "fetch cancelled")
	}

	return file, nil
}
