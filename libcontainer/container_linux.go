package libcontainer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/DragonOS-Community/runcell/libcontainer/cgroups"
	"github.com/DragonOS-Community/runcell/libcontainer/cgroups/fs"
	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

const execFifoFilename = "exec.fifo"

// Container is the in-memory record backing every public operation:
// create, start/run, exec, delete, list, pause/resume. It exclusively owns
// its cgroup manager and state file.
type Container struct {
	mu sync.Mutex

	id string
	bundle string
	stateRoot string
	config *configs.Config
	manager cgroups.Manager

	initProcess parentProcess
	initProcessStartTime uint64
	created time.Time
	status Status

	// state mirrors the last-persisted State record; setnsProcess reads
	// its NamespacePaths to enter an already-running container.
	state *State
}

// CreateContainer prepares the bundle directory and in-memory record for a
// new container in status Created, then immediately forks its first
// process through the bootstrap coordinator up to the point it blocks on
// the exec FIFO. No workload runs until a matching Start.
func CreateContainer(stateRoot, bundle, id string, config *configs.Config, process *Process) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if _, err := loadState(stateRoot, id); err == nil {
		return nil, newError(ConfigurationError, fmt.Sprintf("container %q already exists", id), nil)
	}

	var manager cgroups.Manager
	if config.Cgroups != nil {
		m, err := fs.NewManager(config.Cgroups)
		if err != nil {
			return nil, newError(CgroupError, "constructing cgroup manager", err)
		}
		manager = m
	}

	c := &Container{
		id: id, bundle: bundle, stateRoot: stateRoot,
		config: config, manager: manager,
		created: time.Now(), status: Created,
	}

	process.Init = true
	if err := c.bootstrap(process); err != nil {
		removeStateDir(stateRoot, id)
		return nil, err
	}

	if err := c.persist(); err != nil {
		c.destroyQuiet()
		return nil, err
	}
	return c, nil
}

// bootstrap forks process through the coordinator, recording the resulting
// parentProcess handle and start time.
func (c *Container) bootstrap(process *Process) error {
	fifo, err := c.createExecFifo()
	if err != nil {
		return newError(KernelError, "creating exec fifo", err)
	}

	init, err := newInitProcess(c, process, c.manager, fifo)
	if err != nil {
		fifo.Close()
		c.deleteExecFifo()
		return err
	}
	if err := init.start(); err != nil {
		c.deleteExecFifo()
		return err
	}

	c.initProcess = init
	if st, err := init.startTime(); err == nil {
		c.initProcessStartTime = st
	}
	process.ops = init
	return nil
}

// Start releases a container previously left blocked by CreateContainer,
// by opening its exec FIFO for writing: the child's blocking read on the
// other end returns, and it proceeds to execve the workload.
func (c *Container) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != Created {
		return newError(StateError, fmt.Sprintf("cannot start container in status %s", c.status), nil)
	}

	path := filepath.Join(c.stateRoot, c.id, execFifoFilename)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return newError(KernelError, "opening exec fifo for write", err)
	}
	f.Close()
	os.Remove(path)

	c.status = Running
	return c.persist()
}

// RunContainer is `container run`: CreateContainer immediately followed by
// Start, with no externally observable Created window.
func RunContainer(stateRoot, bundle, id string, config *configs.Config, process *Process) (*Container, error) {
	c, err := CreateContainer(stateRoot, bundle, id, config, process)
	if err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		return nil, err
	}
	return c, nil
}

// Exec runs an additional process inside an already-running container's
// namespaces, eliding handshake steps 6, 8 and 10: no ID maps (already
// written for the init process), no cgroup Set (already applied), no
// prestart hooks.
func (c *Container) Exec(process *Process) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshStatus(); err != nil {
		return err
	}
	if c.status != Running {
		return newError(StateError, fmt.Sprintf("cannot exec into container in status %s", c.status), nil)
	}

	process.Init = false
	sp, err := newSetnsProcess(c, process)
	if err != nil {
		return err
	}
	if err := sp.start(); err != nil {
		return err
	}
	if c.manager != nil {
		if err := c.manager.Apply(sp.pid()); err != nil {
			_ = sp.terminate()
			return newError(CgroupError, "joining cgroup for exec process", err)
		}
	}
	process.ops = sp
	return nil
}

// Signal forwards a signal to the container's init process. To avoid a PID
// reuse attack, this is refused for a container that is not Running or
// Created.
func (c *Container) Signal(sig os.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshStatus(); err != nil {
		return err
	}
	switch c.status {
	case Running, Created:
	default:
		return newError(StateError, "container is not running", nil)
	}
	if c.initProcess == nil {
		return errProcessNotStarted
	}
	return c.initProcess.signal(sig)
}

// Pause and Resume toggle the cgroup freezer, transitioning status
// Running<->Paused.
func (c *Container) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manager == nil {
		return newError(CgroupError, "no cgroup manager: cannot pause", nil)
	}
	if err := c.refreshStatus(); err != nil {
		return err
	}
	if c.status != Running {
		return newError(StateError, "cannot pause a container that is not running", nil)
	}
	if err := c.manager.Freeze(); err != nil {
		return newError(CgroupError, "freezing cgroup", err)
	}
	c.status = Paused
	return c.persist()
}

func (c *Container) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manager == nil {
		return newError(CgroupError, "no cgroup manager: cannot resume", nil)
	}
	if c.status != Paused {
		return newError(StateError, "cannot resume a container that is not paused", nil)
	}
	if err := c.manager.Thaw(); err != nil {
		return newError(CgroupError, "thawing cgroup", err)
	}
	c.status = Running
	return c.persist()
}

// Stats reports current resource usage from the container's cgroup, for
// `container stats`. A container created without a cgroup (Cgroups unset in
// its config) has nothing to report.
func (c *Container) Stats() (*cgroups.Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manager == nil {
		return nil, newError(CgroupError, "no cgroup manager: cannot report stats", nil)
	}
	stats, err := c.manager.Stats()
	if err != nil {
		return nil, newError(CgroupError, "reading cgroup stats", err)
	}
	return stats, nil
}

// Delete implements delete: SIGKILL the init process if it still refers to
// a live process, wait a bounded interval, verify it is gone, destroy the
// cgroup, and remove the bundle and state directories. Deleting a missing
// or already-Stopped container succeeds.
func (c *Container) Delete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshStatus(); err != nil && !IsNotFound(err) {
		return err
	}

	if c.status != Stopped && c.initProcess != nil {
		_ = c.initProcess.signal(unix.SIGKILL)
		deadline := time.Now().Add(100 * time.Millisecond)
		for time.Now().Before(deadline) {
			if !processAlive(c.initProcess.pid(), c.initProcessStartTime) {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		// Cgroup destroy below is what actually enforces resource
		// recovery if the process is still alive after the deadline.
	}

	if c.manager != nil {
		if err := c.manager.Destroy(); err != nil {
			return newError(CgroupError, "destroying cgroup", err)
		}
	}

	c.deleteExecFifo()
	if err := removeStateDir(c.stateRoot, c.id); err != nil {
		return errors.Wrap(err, "removing state directory")
	}
	os.RemoveAll(c.bundle)
	return nil
}

// destroyQuiet is used on a failed CreateContainer: best-effort cleanup,
// errors suppressed since the caller is already propagating the original
// failure.
func (c *Container) destroyQuiet() {
	if c.manager != nil {
		_ = c.manager.Destroy()
	}
	c.deleteExecFifo()
	_ = removeStateDir(c.stateRoot, c.id)
}

func (c *Container) createExecFifo() (*os.File, error) {
	dir := filepath.Join(c.stateRoot, c.id)
	if err := os.MkdirAll(dir, 0o711); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, execFifoFilename)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("exec fifo %s already exists", path)
	}
	oldMask := unix.Umask(0)
	err := unix.Mkfifo(path, 0o622)
	unix.Umask(oldMask)
	if err != nil {
		return nil, err
	}
	// Opened O_PATH so the parent's own open never blocks; the child
	// re-opens it via /proc/self/fd for the blocking read (see
	// waitExecFifo in init_linux.go).
	return os.OpenFile(path, unix.O_PATH|unix.O_CLOEXEC, 0)
}

func (c *Container) deleteExecFifo() {
	os.Remove(filepath.Join(c.stateRoot, c.id, execFifoFilename))
}

// refreshStatus recomputes status from the init process's liveness: a
// recorded PID whose start time no longer matches, or which no longer
// exists, means Stopped.
func (c *Container) refreshStatus() error {
	if c.initProcess == nil {
		c.status = Stopped
		return nil
	}
	if !processAlive(c.initProcess.pid(), c.initProcessStartTime) {
		c.status = Stopped
		return nil
	}
	if c.status == Created || c.status == Paused {
		return nil
	}
	c.status = Running
	return nil
}

func processAlive(pid int, startTime uint64) bool {
	if pid <= 0 {
		return false
	}
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	st, err := parseStartTime(stat)
	if err != nil {
		return false
	}
	return st == startTime
}

// persist writes the current in-memory record to the state file: every
// observable status change is matched by a state-file write before
// returning success.
func (c *Container) persist() error {
	pid := -1
	if c.initProcess != nil {
		pid = c.initProcess.pid()
	}
	nsPaths := make(map[configs.NamespaceType]string)
	cgPaths := map[string]string{}
	if c.manager != nil {
		cgPaths = c.manager.Paths()
	}
	if pid > 0 {
		for _, kind := range configs.NamespaceTypes() {
			nsPaths[kind] = configs.Namespace{Type: kind}.GetPath(pid)
		}
	}

	s := &State{
		ID: c.id,
		InitProcessPid: pid,
		InitProcessStartTime: c.initProcessStartTime,
		Rootless: c.config.RootlessEUID,
		CgroupPaths: cgPaths,
		NamespacePaths: nsPaths,
		Created: c.created.Unix(),
		Rootfs: c.config.Rootfs,
		Bundle: c.bundle,
	}
	c.state = s
	return saveState(c.stateRoot, c.id, s)
}

// ociState builds the OCI runtime state document for handshake step 3 and
// for prestart/poststart hooks.
func (c *Container) ociState() *specs.State {
	pid := 0
	if c.initProcess != nil {
		pid = c.initProcess.pid()
	}
	return &specs.State{
		Version: specs.Version,
		ID: c.id,
		Status: specs.ContainerState(c.status.String()),
		Pid: pid,
		Bundle: c.bundle,
	}
}

// OCIState exposes the runtime state document for `container state`,
// refreshing status first so a just-exited container reports Stopped.
func (c *Container) OCIState() (*specs.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshStatus(); err != nil {
		return nil, err
	}
	return c.ociState(), nil
}

// ID, StatusNow, Pid are the small read-only accessors the CLI layer uses.
func (c *Container) ID() string { return c.id }

func (c *Container) StatusNow() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshStatus(); err != nil {
		return c.status, err
	}
	return c.status, nil
}

func (c *Container) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initProcess == nil {
		return 0
	}
	return c.initProcess.pid()
}

// LoadContainer reconstructs a Container handle from its persisted state,
// for `start`, `exec`, `delete`, `list` invoked as a process separate from
// the one that ran `create`.
func LoadContainer(stateRoot, id string) (*Container, error) {
	s, err := loadState(stateRoot, id)
	if err != nil {
		return nil, err
	}

	cfgPath := filepath.Join(s.Bundle, "config.json")
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, newError(ConfigurationError, "reloading bundle config", err)
	}

	var manager cgroups.Manager
	if cfg.Cgroups != nil {
		m, err := fs.NewManager(cfg.Cgroups)
		if err != nil {
			return nil, newError(CgroupError, "reconstructing cgroup manager", err)
		}
		manager = m
	}

	c := &Container{
		id: id, bundle: s.Bundle, stateRoot: stateRoot,
		config: cfg, manager: manager,
		created: time.Unix(s.Created, 0), state: s,
	}
	if s.InitProcessPid > 0 {
		c.initProcess = &liveProcessHandle{recordedPid: s.InitProcessPid, recordedStart: s.InitProcessStartTime}
		c.initProcessStartTime = s.InitProcessStartTime
	}
	// Status is not persisted: a live init process still held by the exec
	// FIFO is Created, otherwise Running (refreshStatus then maps a dead one
	// to Stopped).
	c.status = Running
	if _, err := os.Stat(filepath.Join(stateRoot, id, execFifoFilename)); err == nil {
		c.status = Created
	}
	if err := c.refreshStatus(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadConfig(path string) (*configs.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg configs.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// liveProcessHandle is a minimal parentProcess implementation for a
// container reloaded from disk: it has no live *exec.Cmd (that belonged to
// the process that created or started it), only a recorded pid and start
// time, enough to signal, probe liveness, and terminate.
type liveProcessHandle struct {
	recordedPid int
	recordedStart uint64
}

func (h *liveProcessHandle) pid() int { return h.recordedPid }

func (h *liveProcessHandle) signal(sig os.Signal) error {
	p, err := os.FindProcess(h.recordedPid)
	if err != nil {
		return err
	}
	return p.Signal(sig)
}

func (h *liveProcessHandle) terminate() error {
	return h.signal(unix.SIGKILL)
}

func (h *liveProcessHandle) wait() (*os.ProcessState, error) {
	return nil, fmt.Errorf("cannot wait on a process reloaded from state")
}

func (h *liveProcessHandle) start() error {
	return fmt.Errorf("cannot start a process reloaded from state")
}

func (h *liveProcessHandle) startTime() (uint64, error) {
	return h.recordedStart, nil
}

// ListContainers enumerates every container recorded under stateRoot,
// probing each one's liveness the same way refreshStatus does.
func ListContainers(stateRoot string) ([]ContainerSummary, error) {
	entries, err := os.ReadDir(stateRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []ContainerSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s, err := loadState(stateRoot, e.Name())
		if err != nil {
			continue
		}
		status := Stopped
		if processAlive(s.InitProcessPid, s.InitProcessStartTime) {
			if _, ferr := os.Stat(filepath.Join(stateRoot, e.Name(), execFifoFilename)); ferr == nil {
				status = Created
			} else {
				status = Running
			}
		}
		out = append(out, ContainerSummary{
			ID: s.ID, Pid: s.InitProcessPid, Bundle: s.Bundle,
			Created: time.Unix(s.Created, 0), Status: status,
		})
	}
	return out, nil
}

// ContainerSummary is the row shape `container list` renders.
type ContainerSummary struct {
	ID string
	Pid int
	Bundle string
	Created time.Time
	Status Status
}
