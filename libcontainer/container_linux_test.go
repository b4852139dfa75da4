package libcontainer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

func selfStartTime(t *testing.T) uint64 {
	t.Helper()
	stat, err := os.ReadFile("/proc/self/stat")
	require.NoError(t, err)
	st, err := parseStartTime(stat)
	require.NoError(t, err)
	return st
}

func TestProcessAliveMatchesSelf(t *testing.T) {
	st := selfStartTime(t)
	assert.True(t, processAlive(os.Getpid(), st))
	assert.False(t, processAlive(os.Getpid(), st+1), "mismatched start time means a different process reused the pid")
}

func TestProcessAliveRejectsNonPositivePid(t *testing.T) {
	assert.False(t, processAlive(0, 0))
	assert.False(t, processAlive(-1, 0))
}

func TestProcessAliveFalseForImpossiblePid(t *testing.T) {
	// PID_MAX_LIMIT is far below this on every real Linux system.
	assert.False(t, processAlive(1<<30, 0))
}

func TestCreateAndDeleteExecFifo(t *testing.T) {
	dir := t.TempDir()
	c := &Container{id: "c1", stateRoot: dir}

	f, err := c.createExecFifo()
	require.NoError(t, err)
	defer f.Close()

	_, err = os.Stat(filepath.Join(dir, "c1", execFifoFilename))
	require.NoError(t, err)

	_, err = c.createExecFifo()
	require.Error(t, err, "a second fifo at the same path must be rejected")

	c.deleteExecFifo()
	_, err = os.Stat(filepath.Join(dir, "c1", execFifoFilename))
	assert.True(t, os.IsNotExist(err))
}

func TestRefreshStatusNoInitProcessIsStopped(t *testing.T) {
	c := &Container{status: Running}
	require.NoError(t, c.refreshStatus())
	assert.Equal(t, Stopped, c.status)
}

func TestRefreshStatusDeadInitProcessIsStopped(t *testing.T) {
	c := &Container{
		status: Running,
		initProcess: &liveProcessHandle{recordedPid: 1 << 30, recordedStart: 0},
	}
	require.NoError(t, c.refreshStatus())
	assert.Equal(t, Stopped, c.status)
}

func TestRefreshStatusLiveProcessPreservesCreatedAndPaused(t *testing.T) {
	st := selfStartTime(t)
	live := &liveProcessHandle{recordedPid: os.Getpid(), recordedStart: st}

	created := &Container{status: Created, initProcess: live, initProcessStartTime: st}
	require.NoError(t, created.refreshStatus())
	assert.Equal(t, Created, created.status)

	paused := &Container{status: Paused, initProcess: live, initProcessStartTime: st}
	require.NoError(t, paused.refreshStatus())
	assert.Equal(t, Paused, paused.status)

	running := &Container{status: Running, initProcess: live, initProcessStartTime: st}
	require.NoError(t, running.refreshStatus())
	assert.Equal(t, Running, running.status)
}

func TestPersistAndLoadContainerRoundTrip(t *testing.T) {
	root := t.TempDir()
	bundle := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "config.json"),
		[]byte(`{"rootfs":"`+bundle+`/rootfs"}`), 0o644))

	st := selfStartTime(t)
	c := &Container{
		id: "c1", bundle: bundle, stateRoot: root,
		config: &configs.Config{Rootfs: bundle + "/rootfs"},
		initProcess: &liveProcessHandle{recordedPid: os.Getpid(), recordedStart: st},
		initProcessStartTime: st,
		created: time.Now(),
		status: Running,
	}
	require.NoError(t, c.persist())

	loaded, err := LoadContainer(root, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", loaded.ID())
	status, err := loaded.StatusNow()
	require.NoError(t, err)
	assert.Equal(t, Running, status)
	assert.Equal(t, os.Getpid(), loaded.Pid())
}

func TestLoadContainerMissingIsNotFound(t *testing.T) {
	_, err := LoadContainer(t.TempDir(), "nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestListContainersDistinguishesCreatedRunningStopped(t *testing.T) {
	root := t.TempDir()
	st := selfStartTime(t)

	mk := func(id string, pid int, withFifo bool) {
		c := &Container{
			id: id, bundle: "/bundle/" + id, stateRoot: root,
			config: &configs.Config{},
			initProcess: &liveProcessHandle{recordedPid: pid, recordedStart: st},
			initProcessStartTime: st,
			created: time.Now(),
		}
		require.NoError(t, c.persist())
		if withFifo {
			require.NoError(t, os.MkdirAll(filepath.Join(root, id), 0o755))
			f, err := os.Create(filepath.Join(root, id, execFifoFilename))
			require.NoError(t, err)
			f.Close()
		}
	}

	mk("created", os.Getpid(), true)
	mk("running", os.Getpid(), false)
	mk("stopped", 1<<30, false)

	summaries, err := ListContainers(root)
	require.NoError(t, err)

	byID := map[string]ContainerSummary{}
	for _, s := range summaries {
		byID[s.ID] = s
	}
	require.Len(t, byID, 3)
	assert.Equal(t, Created, byID["created"].Status)
	assert.Equal(t, Running, byID["running"].Status)
	assert.Equal(t, Stopped, byID["stopped"].Status)
}

func TestDeleteOfUnknownContainerIsIdempotent(t *testing.T) {
	root := t.TempDir()
	_, err := LoadContainer(root, "ghost")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	c := &Container{id: "ghost", stateRoot: root, bundle: filepath.Join(root, "ghost-bundle")}
	require.NoError(t, c.Delete())
	require.NoError(t, c.Delete())
}

func TestLiveProcessHandleCannotWaitOrStart(t *testing.T) {
	h := &liveProcessHandle{recordedPid: 1234, recordedStart: 1}
	_, err := h.wait()
	require.Error(t, err)
	require.Error(t, h.start())
	st, err := h.startTime()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st)
}
