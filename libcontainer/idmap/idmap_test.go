package idmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

func TestComposeSkipsZeroSizeEntries(t *testing.T) {
	maps := []configs.IDMap{
 {ContainerID: 0, HostID: 100000, Size: 65536},
 {ContainerID: 1, HostID: 1, Size: 0},
	}
	assert.Equal(t, "0 100000 65536\n", compose(maps))
}

func TestComposeEmptyInput(t *testing.T) {
	assert.Equal(t, "", compose(nil))
}

func TestWriteSkipsEmptyPayload(t *testing.T) {
	// A nonexistent path must never be opened when there is nothing to write.
	require.NoError(t, write(filepath.Join(t.TempDir(), "does-not-exist"), ""))
}

func TestWriteSingleCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uid_map")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, write(path, "0 100000 65536\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0 100000 65536\n", string(data))
}

func TestWriteMissingFileIsError(t *testing.T) {
	err := write(filepath.Join(t.TempDir(), "missing"), "0 0 1\n")
	require.Error(t, err)
}
