package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

func TestNewManagerRejectsSystemdDriver(t *testing.T) {
	_, err := NewManager(&configs.Cgroup{Driver: configs.Systemd})
	require.Error(t, err)
}

func TestPathsReturnsDefensiveCopy(t *testing.T) {
	m := &Manager{paths: map[string]string{"memory": "/sys/fs/cgroup/memory/c1"}}
	got := m.Paths()
	got["memory"] = "mutated"
	assert.Equal(t, "/sys/fs/cgroup/memory/c1", m.paths["memory"])
}

func TestWriteAndReadUintRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, writeFile(path, "12345"))

	n, err := readUint(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), n)
}

func TestReadUintEmptyFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := readUint(path)
	require.Error(t, err)
}

func TestReadUintTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	require.NoError(t, os.WriteFile(path, []byte(" 42\n"), 0o644))

	n, err := readUint(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
}
