package libcontainer

import (
	"bytes"
	"io"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipePair returns two syncChannels wired to each other through in-memory
// pipes, so a test can drive both sides without real fds.
func pipePair() (*syncChannel, *syncChannel) {
	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	return newSyncChannel(ar, bw), newSyncChannel(br, aw)
}

func TestSyncDataRoundTrip(t *testing.T) {
	a, b := pipePair()
	done := make(chan error, 1)
	go func() {
		payload, err := b.expectData(1)
		if err != nil {
			done <- err
			return
		}
		if !bytes.Equal(payload, []byte("hello")) {
			done <- assert.AnError
			return
		}
		done <- b.ack(1, nil)
	}()

	require.NoError(t, a.sendData(1, []byte("hello")))
	require.NoError(t, <-done)
}

func TestSyncDataRoundTripFailureAck(t *testing.T) {
	a, b := pipePair()
	done := make(chan struct{})
	go func() {
		_, _ = b.expectData(1)
		_ = b.ack(1, assert.AnError)
		close(done)
	}()

	err := a.sendData(1, []byte("x"))
	<-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote reported failure")
}

func TestSyncSignalRoundTrip(t *testing.T) {
	a, b := pipePair()
	done := make(chan error, 1)
	go func() { done <- a.sendSignal(9, syncContinue) }()

	require.NoError(t, b.expectSignal(9, syncContinue))
	require.NoError(t, <-done)
}

func TestSyncSignalWrongTagIsChannelError(t *testing.T) {
	a, b := pipePair()
	go func() { _ = a.sendSignal(9, syncUserNsReady) }()

	err := b.expectSignal(9, syncContinue)
	require.Error(t, err)
	var cerr *channelError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 9, cerr.step)
}

func TestSyncPartialFrameIsChannelError(t *testing.T) {
	r, w := io.Pipe()
	c := newSyncChannel(r, io.Discard)
	go func() {
		_, _ = w.Write([]byte{0, 0, 0, 0})
		w.Close()
	}()
	_, err := c.readMessage(1)
	require.Error(t, err)
	var cerr *channelError
	require.ErrorAs(t, err, &cerr)
}

func TestSyncTagString(t *testing.T) {
	assert.Equal(t, "DATA", syncData.String())
	assert.Equal(t, "READY_TO_EXEC", syncReadyToExec.String())
	assert.Contains(t, syncTag(99).String(), "syncTag(99)")
	assert.Equal(t, "CONSOLE_FD", syncConsoleFd.String())
}

// fdSocketpair returns two fdChannels wired to each other through a real
// AF_UNIX socketpair, the way the console sidecar channel is built.
func fdSocketpair(t *testing.T) (*fdChannel, *fdChannel) {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	require.NoError(t, err)
	a := os.NewFile(uintptr(fds[0]), "a")
	b := os.NewFile(uintptr(fds[1]), "b")
	t.Cleanup(func() { a.Close(); b.Close() })
	return newFdChannel(a), newFdChannel(b)
}

func TestFdChannelSendRecvCarriesFd(t *testing.T) {
	a, b := fdSocketpair(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	done := make(chan error, 1)
	go func() { done <- a.sendFd(4, syncConsoleFd, int(w.Fd())) }()

	tag, recvd, err := b.recvFd(4, "handed-off")
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.NotNil(t, recvd)
	defer recvd.Close()
	assert.Equal(t, syncConsoleFd, tag)

	w.Close()
	const payload = "hello through the console sidecar"
	_, err = recvd.WriteString(payload)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, string(buf))
}
