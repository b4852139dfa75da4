package libcontainer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

func TestSaveLoadStateRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := &State{
		ID: "c1",
		InitProcessPid: 1234,
		InitProcessStartTime: 9999,
		CgroupPaths: map[string]string{"memory": "/sys/fs/cgroup/memory/c1"},
		NamespacePaths: map[configs.NamespaceType]string{configs.NEWPID: "/proc/1234/ns/pid"},
		Created: 1700000000,
		Rootfs: "/bundle/rootfs",
		Bundle: "/bundle",
	}

	require.NoError(t, saveState(root, "c1", s))

	loaded, err := loadState(root, "c1")
	require.NoError(t, err)
	assert.True(t, s.equalModuloStatus(loaded))
}

func TestLoadStateMissingIsNotFound(t *testing.T) {
	root := t.TempDir()
	_, err := loadState(root, "nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSaveStateIsAtomic(t *testing.T) {
	root := t.TempDir()
	s := &State{ID: "c1"}
	require.NoError(t, saveState(root, "c1", s))

	entries, err := os.ReadDir(filepath.Join(root, "c1"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, stateFilename, e.Name(), "no leftover temp file should remain")
	}
}

func TestRemoveStateDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, saveState(root, "c1", &State{ID: "c1"}))
	require.NoError(t, removeStateDir(root, "c1"))
	_, err := os.Stat(filepath.Join(root, "c1"))
	assert.True(t, os.IsNotExist(err))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "paused", Paused.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "unknown", Status(99).String())
}
