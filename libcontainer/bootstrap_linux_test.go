package libcontainer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeBootstrapRoundTrip(t *testing.T) {
	msg := bootstrapMessage{
 CloneFlags: 0x30000000,
 PidNsEnabled: true,
 NamespacePaths: map[string]string{
 "net": "/proc/1/ns/net",
 },
	}

	encoded, err := encodeBootstrap(msg)
	require.NoError(t, err)

	decoded, err := decodeBootstrap(encoded)
	require.NoError(t, err)
	assert.Equal(t, msg.CloneFlags, decoded.CloneFlags)
	assert.Equal(t, msg.PidNsEnabled, decoded.PidNsEnabled)
	assert.Equal(t, msg.NamespacePaths, decoded.NamespacePaths)
}

func TestEncodeDecodeBootstrapEmpty(t *testing.T) {
	msg := bootstrapMessage{NamespacePaths: map[string]string{}}
	encoded, err := encodeBootstrap(msg)
	require.NoError(t, err)

	decoded, err := decodeBootstrap(encoded)
	require.NoError(t, err)
	assert.False(t, decoded.PidNsEnabled)
	assert.Equal(t, uint32(0), decoded.CloneFlags)
}

func TestDecodeBootstrapRejectsEmptyInput(t *testing.T) {
	_, err := decodeBootstrap(nil)
	require.Error(t, err)
}

func TestLogBootstrapDoesNotPanicOnGarbage(t *testing.T) {
	assert.NotPanics(t, func() { logBootstrap([]byte("garbage")) })
}
