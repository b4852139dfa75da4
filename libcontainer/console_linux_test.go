package libcontainer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRecvConsoleHandsOffFd(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "console.sock")
	l, err := ListenConsoleSocket(sockPath)
	require.NoError(t, err)
	defer l.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	done := make(chan error, 1)
	go func() { done <- SendConsole(sockPath, w) }()

	recvd, err := RecvConsole(l)
	require.NoError(t, err)
	defer recvd.Close()

	select {
	case sendErr := <-done:
		require.NoError(t, sendErr)
	case <-time.After(2 * time.Second):
		require.Fail(t, "SendConsole did not return")
	}

	w.Close()
	const payload = "hello through the handed-off fd"
	_, err = recvd.WriteString(payload)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, string(buf))
}

func TestListenConsoleSocketRemovesStaleSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "console.sock")
	require.NoError(t, os.WriteFile(sockPath, []byte("stale"), 0o644))

	l, err := ListenConsoleSocket(sockPath)
	require.NoError(t, err)
	defer l.Close()
}
