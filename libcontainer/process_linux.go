package libcontainer

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/pkg/errors"

	"github.com/DragonOS-Community/runcell/libcontainer/cgroups"
	"github.com/DragonOS-Community/runcell/libcontainer/configs"
	"github.com/DragonOS-Community/runcell/libcontainer/idmap"
	"github.com/DragonOS-Community/runcell/libcontainer/logs"
)

// parentProcess is the parent-side handle to a running container process.
// initProcess implements it for the container's first process (the
// bootstrap coordinator); setnsProcess implements it for a later exec,
// which elides most of the handshake.
type parentProcess interface {
	pid() int
	start() error
	wait() (*os.ProcessState, error)
	signal(sig os.Signal) error
	terminate() error
	startTime() (uint64, error)
}

// Environment variable names the child entry point reads. Each
// *_FD variable carries a decimal fd number inherited across exec.
const (
	envInit = "INIT"
	envNoPivot = "NO_PIVOT"
	envChildReadFd = "CRFD_FD"
	envChildWriteFd = "CWFD_FD"
	envChildLogFd = "CLOG_FD"
	envFifoFd = "FIFO_FD"
	envPidnsFd = "PIDNS_FD"
	envPidnsEnabled = "PIDNS_ENABLED"
	envConsoleSockFd = "CONSOLE_SOCKET_FD"
	envBootstrapFd = "BOOTSTRAP_FD"
)

// initProcessMessage is the wire form of handshake step 2, "process
// descriptor".
type initProcessMessage struct {
	ExecID string `json:"exec_id"`
	Args []string `json:"args"`
	Env []string `json:"env"`
	Cwd string `json:"cwd"`
	User string `json:"user"`
	Init bool `json:"init"`
	LogLevel string `json:"log_level"`

	// Console tells the child to allocate a pty and hand its master fd back
	// over the console sidecar channel instead of inheriting Stdout/Stderr.
	Console bool `json:"console"`
}

// cgroupManagerWire is the wire form of handshake step 4, "cgroup manager":
// the child only needs the resolved paths to find its own cgroup
// membership, never the full Manager value.
type cgroupManagerWire struct {
	Paths map[string]string `json:"paths"`
	Rootless bool `json:"rootless"`
}

// initProcess is the bootstrap coordinator: it owns a freshly forked child
// end to end, from the sync-channel handshake through hook execution to the
// point the child execves the container workload.
type initProcess struct {
	cmd *exec.Cmd

	// sync is the parent's view of the full-duplex channel: its own read
	// end (fed by the child's write pipe) and its own write end (feeding
	// the child's read pipe). Two anonymous pipes, one per direction.
	sync *syncChannel

	// childSyncRead/childSyncWrite/childLogWrite are the child's ends of
	// the three pipes, inherited across exec and closed by the parent
	// once the child has started.
	childSyncRead, childSyncWrite, childLogWrite *os.File
	logRead *os.File

	// bootstrapWrite is the parent's end of the pre-handshake pipe carrying
	// the netlink-encoded bootstrap message (clone flags, namespace join
	// paths); bootstrapMsg is what gets encoded onto it once the child has
	// started.
	bootstrapRead, bootstrapWrite *os.File
	bootstrapMsg bootstrapMessage

	// consoleSidecar, when process.Tty is set, is the parent's end of a
	// dedicated AF_UNIX socketpair used only to receive the pty master fd
	// the child allocates; childConsoleSock is the child's end, inherited
	// across exec and closed by the parent once the child has started,
	// same as the sync and log pipes above.
	consoleSidecar *fdChannel
	childConsoleSock *os.File

	container *Container
	process *Process
	config *configs.Config
	manager cgroups.Manager
	plan configs.Plan

	logDone chan struct{}
}

// newInitProcess builds the coordinator for c's first process. It resolves
// the namespace plan, allocates the sync and log pipes, and arranges the
// re-exec of this same binary as "init" with the plan's CreateNew flags set
// on the child's SysProcAttr.
func newInitProcess(c *Container, p *Process, manager cgroups.Manager, execFifo *os.File) (*initProcess, error) {
	plan, err := configs.ResolvePlan(c.config.Namespaces)
	if err != nil {
		return nil, newError(ConfigurationError, "resolving namespace plan", err)
	}

	// Pipe 1: child -> parent (sync channel read side for the parent).
	parentSyncR, childSyncW, err := os.Pipe()
	if err != nil {
		plan.Close()
		return nil, newError(ChannelError, "creating sync pipe", err)
	}
	// Pipe 2: parent -> child (sync channel write side for the parent).
	childSyncR, parentSyncW, err := os.Pipe()
	if err != nil {
		parentSyncR.Close()
		childSyncW.Close()
		plan.Close()
		return nil, newError(ChannelError, "creating sync pipe", err)
	}
	// Pipe 3: log pipe, child writes, parent drains.
	logR, childLogW, err := os.Pipe()
	if err != nil {
		parentSyncR.Close()
		childSyncW.Close()
		childSyncR.Close()
		parentSyncW.Close()
		plan.Close()
		return nil, newError(ChannelError, "creating log pipe", err)
	}
	// Pipe 4: pre-handshake bootstrap message, parent writes, child reads
	// once at startup, before the sync channel's own reader loop exists.
	bootstrapR, bootstrapW, err := os.Pipe()
	if err != nil {
		parentSyncR.Close()
		childSyncW.Close()
		childSyncR.Close()
		parentSyncW.Close()
		logR.Close()
		childLogW.Close()
		plan.Close()
		return nil, newError(ChannelError, "creating bootstrap pipe", err)
	}

	cmd := exec.Command("/proc/self/exe", "init")
	cmd.Stdin = p.Stdin
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	cmd.Dir = c.config.Rootfs
	cmd.ExtraFiles = append(cmd.ExtraFiles, p.ExtraFiles...)

	extraBase := 3 + len(p.ExtraFiles)
	cmd.ExtraFiles = append(cmd.ExtraFiles, childSyncR, childSyncW, childLogW, bootstrapR)
	env := append([]string{}, p.Env...)
	env = append(env,
		fmt.Sprintf("%s=%d", envInit, boolInt(p.Init)),
		fmt.Sprintf("%s=%d", envNoPivot, boolInt(c.config.NoPivotRoot)),
		fmt.Sprintf("%s=%d", envChildReadFd, extraBase+0),
		fmt.Sprintf("%s=%d", envChildWriteFd, extraBase+1),
		fmt.Sprintf("%s=%d", envChildLogFd, extraBase+2),
		fmt.Sprintf("%s=%d", envBootstrapFd, extraBase+3))
	nextFd := extraBase + 4

	pidDisp := plan.PidNamespaceDisposition()
	env = append(env, fmt.Sprintf("%s=%d", envPidnsEnabled, boolInt(pidDisp.Enabled)))
	if pidDisp.JoinFd != nil {
		cmd.ExtraFiles = append(cmd.ExtraFiles, pidDisp.JoinFd)
		env = append(env, fmt.Sprintf("%s=%d", envPidnsFd, nextFd))
		nextFd++
	}

	var parentConsoleSock, childConsoleSock *os.File
	if p.Tty {
		fds, serr := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
		if serr != nil {
			plan.Close()
			return nil, newError(ChannelError, "creating console sidecar socketpair", serr)
		}
		parentConsoleSock = os.NewFile(uintptr(fds[0]), "console-sidecar-parent")
		childConsoleSock = os.NewFile(uintptr(fds[1]), "console-sidecar-child")
		cmd.ExtraFiles = append(cmd.ExtraFiles, childConsoleSock)
		env = append(env, fmt.Sprintf("%s=%d", envConsoleSockFd, nextFd))
		nextFd++
	}

	if execFifo != nil {
		cmd.ExtraFiles = append(cmd.ExtraFiles, execFifo)
		env = append(env, fmt.Sprintf("%s=%d", envFifoFd, nextFd))
		nextFd++
	}

	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: plan.CloneFlags(),
	}

	joinPaths := map[string]string{}
	for _, e := range plan {
		if e.Action == configs.ActionJoin {
			joinPaths[string(e.Kind)] = e.Path
		}
	}

	var consoleSidecar *fdChannel
	if parentConsoleSock != nil {
		consoleSidecar = newFdChannel(parentConsoleSock)
	}

	return &initProcess{
		cmd: cmd,
		childSyncRead: childSyncR, childSyncWrite: childSyncW, childLogWrite: childLogW,
		logRead: logR,
		bootstrapRead: bootstrapR,
		bootstrapWrite: bootstrapW,
		consoleSidecar: consoleSidecar,
		childConsoleSock: childConsoleSock,
		bootstrapMsg: bootstrapMessage{
			CloneFlags: uint32(plan.CloneFlags()),
			PidNsEnabled: pidDisp.Enabled,
			NamespacePaths: joinPaths,
		},
		container: c,
		process: p,
		config: c.config,
		manager: manager,
		plan: plan,
		logDone: make(chan struct{}),
		sync: newSyncChannel(parentSyncR, parentSyncW),
	}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (p *initProcess) pid() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *initProcess) signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return errProcessNotStarted
	}
	return p.cmd.Process.Signal(sig)
}

func (p *initProcess) terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	defer lockWaitPID()()
	if _, werr := p.cmd.Process.Wait(); werr == nil {
		return nil
	}
	return err
}

func (p *initProcess) wait() (*os.ProcessState, error) {
	defer lockWaitPID()()
	err := p.cmd.Wait()
	<-p.logDone
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, err
		}
	}
	return p.cmd.ProcessState, nil
}

func (p *initProcess) startTime() (uint64, error) {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", p.pid()))
	if err != nil {
		return 0, err
	}
	return parseStartTime(stat)
}

// start drives the eleven-step handshake from start to finish. Any failure
// unwinds through cleanup: kill the child if it still exists, destroy any
// partially-applied cgroup, close unconsumed namespace fds, and propagate a
// typed error carrying the failing step index.
func (p *initProcess) start() (retErr error) {
	defer func() {
		// The parent's copies of the child's pipe ends are only useful
		// until the child has exec'd; closing them here (success or
		// failure) is always correct once cmd.Start has run.
		p.childSyncRead.Close()
		p.childSyncWrite.Close()
		p.childLogWrite.Close()
		p.bootstrapRead.Close()
		if p.childConsoleSock != nil {
			p.childConsoleSock.Close()
		}
	}()
	// Every namespace fd the resolver opened for a Join entry is either
	// consumed by the child via its own independent re-open (non-pid
	// kinds) or handed across as PIDNS_FD and closed on that side; the
	// parent's copies serve no further purpose once the child has started.
	defer p.plan.Close()

	if err := p.cmd.Start(); err != nil {
		p.plan.Close()
		return newError(KernelError, "starting child process", err)
	}

	go func() {
		logs.ForwardLogs(p.logRead)
		close(p.logDone)
	}()

	if payload, err := encodeBootstrap(p.bootstrapMsg); err == nil {
		_, _ = p.bootstrapWrite.Write(payload)
	}
	p.bootstrapWrite.Close()

	defer func() {
		if retErr != nil {
			p.cleanupOnFailure()
		}
	}()

	// Step 1: send OCI spec.
	cfgPayload, err := json.Marshal(p.config)
	if err != nil {
		return newStepError(ConfigurationError, 1, "marshaling config", err)
	}
	if err := p.sync.sendData(1, cfgPayload); err != nil {
		return err
	}

	// Step 2: send process descriptor.
	procMsg := initProcessMessage{
		ExecID: p.process.ExecID, Args: p.process.Args, Env: p.process.Env,
		Cwd: p.process.Cwd, User: p.process.User, Init: p.process.Init,
		LogLevel: p.process.LogLevel, Console: p.process.Tty,
	}
	procPayload, err := json.Marshal(procMsg)
	if err != nil {
		return newStepError(ConfigurationError, 2, "marshaling process descriptor", err)
	}
	if err := p.sync.sendData(2, procPayload); err != nil {
		return err
	}

	// Step 3: send OCI state document.
	statePayload, err := json.Marshal(p.container.ociState())
	if err != nil {
		return newStepError(ConfigurationError, 3, "marshaling state document", err)
	}
	if err := p.sync.sendData(3, statePayload); err != nil {
		return err
	}

	// Step 4: send cgroup manager. No immediate ack: the child's next
	// message is the "user-namespace ready" signal of step 5.
	wire := cgroupManagerWire{Rootless: p.config.RootlessCgroups}
	if p.manager != nil {
		wire.Paths = p.manager.Paths()
	}
	wirePayload, err := json.Marshal(wire)
	if err != nil {
		return newStepError(ConfigurationError, 4, "marshaling cgroup manager", err)
	}
	if err := p.sync.writeMessage(4, syncData, wirePayload); err != nil {
		return err
	}

	// Step 4b (conditional on Tty): receive the pty master fd the child
	// allocates once it has joined its namespaces, and forward it to the
	// caller's --console-socket if one was given.
	if p.process.Tty {
		tag, master, err := p.consoleSidecar.recvFd(4, "console-master")
		if err != nil {
			return err
		}
		if tag != syncConsoleFd {
			return newChannelError(4, fmt.Sprintf("unexpected tag %s, wanted CONSOLE_FD", tag), nil)
		}
		if master != nil {
			if p.process.ConsoleSocketPath != "" {
				sendErr := SendConsole(p.process.ConsoleSocketPath, master)
				master.Close()
				if sendErr != nil {
					return newStepError(ChannelError, 4, "forwarding console master fd", sendErr)
				}
			} else {
				master.Close()
			}
		}
		p.consoleSidecar.f.Close()
	}

	// Step 5: await "user-namespace ready".
	if err := p.sync.expectSignal(5, syncUserNsReady); err != nil {
		return err
	}

	// Step 6 (conditional): write ID mappings.
	if p.plan.UserNamespaceCreate() {
		if err := idmap.Write(p.pid(), p.config.UIDMappings, p.config.GIDMappings); err != nil {
			return newStepError(KernelError, 6, "writing id mappings", err)
		}
	}

	// Step 7 (conditional on resources present): apply cgroups.
	if p.config.Cgroups != nil && p.config.Cgroups.Resources != nil {
		if err := p.manager.Apply(p.pid()); err != nil {
			return newStepError(CgroupError, 7, "applying cgroup", err)
		}
		// Step 8 (conditional on resources present AND init): set properties.
		if p.process.Init {
			if err := p.manager.Set(p.config.Cgroups.Resources, false); err != nil {
				return newStepError(CgroupError, 8, "setting cgroup resources", err)
			}
		}
	}

	// Step 9: signal "continue".
	if err := p.sync.sendSignal(9, syncContinue); err != nil {
		return err
	}

	// Step 10 (only if init): prestart hook sub-handshake.
	if p.process.Init {
		if err := p.sync.expectSignal(10, syncHooksReady); err != nil {
			return err
		}
		if err := p.config.Hooks.Run(configs.Prestart, p.container.ociState()); err != nil {
			return newStepError(HookError, 10, "running prestart hooks", err)
		}
		if err := p.sync.sendSignal(10, syncHooksDone); err != nil {
			return err
		}
	}

	// Step 11: await "ready to exec".
	if err := p.sync.expectSignal(11, syncReadyToExec); err != nil {
		return err
	}

	return nil
}

// cleanupOnFailure implements the failure path: kill the child if it still
// exists, destroy any partially-applied cgroup, and close any namespace
// descriptors the resolver opened but the child never consumed.
func (p *initProcess) cleanupOnFailure() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGKILL)
		unlock := lockWaitPID()
		_, _ = p.cmd.Process.Wait()
		unlock()
	}
	if p.manager != nil {
		_ = p.manager.Destroy()
	}
	p.plan.Close()
}

// setnsProcess implements the "exec" operation: it enters an already-running
// container's namespaces and cgroup, eliding handshake steps 6, 8, and 10
// (id maps already written, resources already set, no prestart for a
// non-init process).
type setnsProcess struct {
	cmd *exec.Cmd
	sync *syncChannel
	child *os.File
	childW *os.File

	consoleSidecar *fdChannel
	childConsoleSock *os.File

	process *Process
	container *Container
}

func newSetnsProcess(c *Container, p *Process) (*setnsProcess, error) {
	parentR, childW, err := os.Pipe()
	if err != nil {
		return nil, newError(ChannelError, "creating sync pipe", err)
	}
	childR, parentW, err := os.Pipe()
	if err != nil {
		parentR.Close()
		childW.Close()
		return nil, newError(ChannelError, "creating sync pipe", err)
	}

	cmd := exec.Command("/proc/self/exe", "init")
	cmd.Stdin = p.Stdin
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	cmd.ExtraFiles = append(cmd.ExtraFiles, childR, childW)
	env := append(append([]string{}, p.Env...),
		fmt.Sprintf("%s=%d", envInit, 0),
		fmt.Sprintf("%s=%d", envChildReadFd, 3),
		fmt.Sprintf("%s=%d", envChildWriteFd, 4))
	nextFd := 5

	var parentConsoleSock, childConsoleSock *os.File
	if p.Tty {
		fds, serr := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
		if serr != nil {
			parentR.Close()
			parentW.Close()
			childR.Close()
			childW.Close()
			return nil, newError(ChannelError, "creating console sidecar socketpair", serr)
		}
		parentConsoleSock = os.NewFile(uintptr(fds[0]), "console-sidecar-parent")
		childConsoleSock = os.NewFile(uintptr(fds[1]), "console-sidecar-child")
		cmd.ExtraFiles = append(cmd.ExtraFiles, childConsoleSock)
		env = append(env, fmt.Sprintf("%s=%d", envConsoleSockFd, nextFd))
		nextFd++
	}

	// The pid namespace is singled out exactly as it is for the init
	// process: setns(CLONE_NEWPID) only takes effect for the joining
	// thread's future children (pid_namespaces(7)), so the exec process
	// relaunches itself from inside the namespace too, rather than
	// setns-ing in place like every other kind.
	if path := c.state.NamespacePaths[configs.NEWPID]; path != "" {
		f, err := os.Open(path)
		if err != nil {
			parentR.Close()
			parentW.Close()
			childR.Close()
			childW.Close()
			return nil, newError(KernelError, fmt.Sprintf("opening pid namespace %s", path), err)
		}
		cmd.ExtraFiles = append(cmd.ExtraFiles, f)
		env = append(env, fmt.Sprintf("%s=%d", envPidnsFd, nextFd))
		nextFd++
	}

	for _, kind := range configs.NamespaceTypes() {
		if kind == configs.NEWPID {
			continue
		}
		if path := c.state.NamespacePaths[kind]; path != "" {
			env = append(env, fmt.Sprintf("JOIN_%s=%s", namespaceEnvName(kind), path))
		}
	}
	cmd.Env = env

	var consoleSidecar *fdChannel
	if parentConsoleSock != nil {
		consoleSidecar = newFdChannel(parentConsoleSock)
	}

	return &setnsProcess{
		cmd: cmd, child: childR, childW: childW,
		consoleSidecar: consoleSidecar, childConsoleSock: childConsoleSock,
		process: p, container: c,
		sync: newSyncChannel(parentR, parentW),
	}, nil
}

func namespaceEnvName(t configs.NamespaceType) string {
	switch t {
	case configs.NEWUSER:
		return "USER"
	case configs.NEWIPC:
		return "IPC"
	case configs.NEWUTS:
		return "UTS"
	case configs.NEWNET:
		return "NET"
	case configs.NEWPID:
		return "PID"
	case configs.NEWNS:
		return "MNT"
	case configs.NEWCGROUP:
		return "CGROUP"
	default:
		return "UNKNOWN"
	}
}

func (p *setnsProcess) pid() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *setnsProcess) signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return errProcessNotStarted
	}
	return p.cmd.Process.Signal(sig)
}

func (p *setnsProcess) terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *setnsProcess) wait() (*os.ProcessState, error) {
	defer lockWaitPID()()
	if err := p.cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, err
		}
	}
	return p.cmd.ProcessState, nil
}

func (p *setnsProcess) startTime() (uint64, error) {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", p.pid()))
	if err != nil {
		return 0, err
	}
	return parseStartTime(stat)
}

func (p *setnsProcess) start() (retErr error) {
	defer p.child.Close()
	defer p.childW.Close()
	if p.childConsoleSock != nil {
		defer p.childConsoleSock.Close()
	}

	if err := p.cmd.Start(); err != nil {
		return newError(KernelError, "starting exec process", err)
	}
	defer func() {
		if retErr != nil {
			_ = p.cmd.Process.Signal(syscall.SIGKILL)
			unlock := lockWaitPID()
			_, _ = p.cmd.Process.Wait()
			unlock()
		}
	}()

	procMsg := initProcessMessage{
		ExecID: p.process.ExecID, Args: p.process.Args, Env: p.process.Env,
		Cwd: p.process.Cwd, User: p.process.User, Init: false,
		LogLevel: p.process.LogLevel, Console: p.process.Tty,
	}
	payload, err := json.Marshal(procMsg)
	if err != nil {
		return newStepError(ConfigurationError, 2, "marshaling process descriptor", err)
	}
	if err := p.sync.sendData(2, payload); err != nil {
		return err
	}

	if p.process.Tty {
		tag, master, err := p.consoleSidecar.recvFd(2, "console-master")
		if err != nil {
			return err
		}
		if tag != syncConsoleFd {
			return newChannelError(2, fmt.Sprintf("unexpected tag %s, wanted CONSOLE_FD", tag), nil)
		}
		if master != nil {
			if p.process.ConsoleSocketPath != "" {
				sendErr := SendConsole(p.process.ConsoleSocketPath, master)
				master.Close()
				if sendErr != nil {
					return newStepError(ChannelError, 2, "forwarding console master fd", sendErr)
				}
			} else {
				master.Close()
			}
		}
		p.consoleSidecar.f.Close()
	}

	if err := p.sync.sendSignal(9, syncContinue); err != nil {
		return err
	}
	return p.sync.expectSignal(11, syncReadyToExec)
}

// parseStartTime extracts the starttime field (22nd, per proc(5)) of a
// /proc/<pid>/stat dump. The comm field (2nd) is parenthesized and may
// itself contain spaces, so splitting is anchored on the last ')'.
func parseStartTime(stat []byte) (uint64, error) {
	s := string(stat)
	i := lastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return 0, errors.New("malformed /proc/<pid>/stat")
	}
	fields := splitFields(s[i+2:])
	const startTimeField = 22 - 2 - 1 // fields after comm, 0-indexed
	if startTimeField >= len(fields) {
		return 0, errors.New("missing starttime field")
	}
	return strconv.ParseUint(fields[startTimeField], 10, 64)
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func splitFields(s string) []string {
	var out []string
	start := -1
	for i, c := range s {
		if c == ' ' || c == '\t' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}
