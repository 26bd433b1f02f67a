package bridge

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestConnectPassword(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)

	m, err := NewManager(server.clientConfig("secret"))
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.IsConnected())

	// Reconnecting while live is a no-op.
	require.NoError(t, m.Connect(context.Background()))

	m.Close()
	assert.False(t, m.IsConnected())
	m.Close()
}

func TestConnectWrongPassword(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)

	m, err := NewManager(server.clientConfig("nope"))
	require.NoError(t, err)
	defer m.Close()

	err = m.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthentication(err), "expected authentication error, got %v", err)
	assert.False(t, m.IsConnected())
}

func TestConnectPrivateKey(t *testing.T) {
	privatePEM, publicKey := clientKeyPair(t)
	server := startTestSSHServer(t, "", publicKey)

	cfg := server.clientConfig("")
	cfg.PrivateKey = privatePEM

	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.IsConnected())
}

func TestConnectMalformedKey(t *testing.T) {
	server := startTestSSHServer(t, "", nil)

	cfg := server.clientConfig("")
	cfg.PrivateKey = "not a pem key"

	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	err = m.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsKeyParse(err), "expected key parse error, got %v", err)
}

func TestConnectRefused(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)
	cfg := server.clientConfig("secret")
	require.NoError(t, server.listener.Close())

	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	err = m.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnection(err))
}

func TestConnectSingleFlightOnSuccess(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)

	dialer := &countingDialer{inner: NewDialer()}
	m, err := newManager(server.clientConfig("secret"), dialer)
	require.NoError(t, err)
	defer m.Close()

	const callers = 10
	start := make(chan struct{})
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = m.EnsureConnected(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int32(1), dialer.calls.Load(), "one handshake must serve all callers")
	assert.True(t, m.IsConnected())
}

type countingDialer struct {
	inner Dialer
	calls atomic.Int32
}

func (d *countingDialer) Dial(ctx context.Context, cfg ConnectionConfig) (*ssh.Client, error) {
	d.calls.Add(1)
	return d.inner.Dial(ctx, cfg)
}

func TestExecCollectsOutput(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)
	server.setExecResponse("echo hello", execResponse{stdout: "hello\n"})

	m, err := NewManager(server.clientConfig("secret"))
	require.NoError(t, err)
	defer m.Close()

	output, err := m.Exec(context.Background(), "echo hello", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", output.Stdout)
	assert.Equal(t, "", output.Stderr)
	require.NotNil(t, output.ExitCode)
	assert.Equal(t, 0, *output.ExitCode)
	assert.True(t, output.Success())
}

func TestExecSeparatesStderrAndExitCode(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)
	server.setExecResponse("failing", execResponse{stdout: "partial\n", stderr: "boom\n", exit: 2})

	m, err := NewManager(server.clientConfig("secret"))
	require.NoError(t, err)
	defer m.Close()

	output, err := m.Exec(context.Background(), "failing", 5*time.Second)
	require.NoError(t, err, "non-zero exit is a result, not an error")
	assert.Equal(t, "partial\n", output.Stdout)
	assert.Equal(t, "boom\n", output.Stderr)
	require.NotNil(t, output.ExitCode)
	assert.Equal(t, 2, *output.ExitCode)
	assert.False(t, output.Success())
}

func TestExecMissingExitStatus(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)
	server.setExecResponse("silent", execResponse{stdout: "out\n", noStatus: true})

	m, err := NewManager(server.clientConfig("secret"))
	require.NoError(t, err)
	defer m.Close()

	output, err := m.Exec(context.Background(), "silent", 5*time.Second)
	require.NoError(t, err)
	assert.Nil(t, output.ExitCode)
	assert.True(t, output.Success(), "missing status is optimistic success")
}

func TestExecTimeoutFiresAbort(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)
	server.setExecResponse("sleep 5", execResponse{stdout: "late\n", delay: 2 * time.Second})

	m, err := NewManager(server.clientConfig("secret"))
	require.NoError(t, err)
	defer m.Close()

	start := time.Now()
	_, err = m.Exec(context.Background(), "sleep 5", 200*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "expected timeout error, got %v", err)
	assert.Equal(t, "Command timeout after 200ms", err.Error())
	assert.Less(t, time.Since(start), time.Second, "timeout must not wait for the command")

	abortCmd, ok := server.waitForExec("pkill -f", 3*time.Second)
	require.True(t, ok, "abort command never reached the server")
	assert.Equal(t, "timeout 3s pkill -f 'sleep 5' 2>/dev/null || true", abortCmd)
}

func TestConnectElevatesWhenConfigured(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)
	server.suPassword = "rootpw"
	server.setShellResponse("whoami", "root")

	cfg := server.clientConfig("secret")
	cfg.SuPassword = "rootpw"

	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.IsElevated(), "connect must elevate opportunistically")

	output, err := m.Exec(context.Background(), "whoami", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "root\n", output.Stdout)
	require.NotNil(t, output.ExitCode)
	assert.Equal(t, 0, *output.ExitCode)

	// The command ran inside the reused shell, not on an exec channel.
	assert.Empty(t, server.execCommands())
}

func TestConnectSurvivesFailedElevation(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)
	server.suPassword = "rootpw"
	server.setExecResponse("whoami", execResponse{stdout: "tester\n"})

	cfg := server.clientConfig("secret")
	cfg.SuPassword = "wrongpw"

	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()), "failed elevation must not fail connect")
	assert.False(t, m.IsElevated())

	// Commands fall through to the exec channel.
	output, err := m.Exec(context.Background(), "whoami", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "tester\n", output.Stdout)
	assert.Equal(t, []string{"whoami"}, server.execCommands())
}

func TestElevatedShellReusedAcrossCommands(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)
	server.suPassword = "rootpw"
	server.setShellResponse("whoami", "root")
	server.setShellResponse("hostname", "box")

	cfg := server.clientConfig("secret")
	cfg.SuPassword = "rootpw"

	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))

	first, err := m.Exec(context.Background(), "whoami", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "root\n", first.Stdout)

	second, err := m.Exec(context.Background(), "hostname", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "box\n", second.Stdout)

	assert.Empty(t, server.execCommands())
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)

	m, err := NewManager(server.clientConfig("secret"))
	require.NoError(t, err)
	defer m.Close()

	dir := t.TempDir()
	localSrc := filepath.Join(dir, "src.txt")
	remotePath := filepath.Join(dir, "remote", "dst.txt")
	localDst := filepath.Join(dir, "fetched", "back.txt")

	content := []byte("round trip payload\n")
	require.NoError(t, os.WriteFile(localSrc, content, 0644))

	ctx := context.Background()
	require.NoError(t, m.Upload(ctx, localSrc, remotePath))

	uploaded, err := os.ReadFile(remotePath)
	require.NoError(t, err)
	assert.Equal(t, content, uploaded)

	require.NoError(t, m.Download(ctx, remotePath, localDst))
	fetched, err := os.ReadFile(localDst)
	require.NoError(t, err)
	assert.Equal(t, content, fetched)
}

func TestUploadRejectsDirectory(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)

	m, err := NewManager(server.clientConfig("secret"))
	require.NoError(t, err)
	defer m.Close()

	dir := t.TempDir()
	err = m.Upload(context.Background(), dir, filepath.Join(dir, "dst"))
	require.Error(t, err)
	assert.True(t, IsInvalidParams(err))
	assert.Contains(t, err.Error(), "only single files")
}

func TestFetchStreamsRemoteFile(t *testing.T) {
	server := startTestSSHServer(t, "secret", nil)

	m, err := NewManager(server.clientConfig("secret"))
	require.NoError(t, err)
	defer m.Close()

	dir := t.TempDir()
	remotePath := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(remotePath, []byte("streamed"), 0644))

	rc, err := m.Fetch(context.Background(), remotePath)
	require.NoError(t, err)
	defer rc.Close()

	data := make([]byte, 16)
	n, _ := rc.Read(data)
	assert.Equal(t, "streamed", string(data[:n]))
}
