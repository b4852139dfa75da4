package libcontainer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"

	"github.com/opencontainers/selinux/go-selinux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

// Init is the entry point for the hidden "init" subcommand: the re-exec'd
// child side of the bootstrap coordinator's handshake. It is never invoked
// directly by a user — only by the coordinator re-executing
// /proc/self/exe.
func Init() {
	if err := runInit(); err != nil {
		fmt.Fprintln(os.Stderr, "init: "+err.Error())
		os.Exit(1)
	}
}

func envFd(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func runInit() error {
	// Joining an existing PID namespace can't be done in place: per
	// pid_namespaces(7), setns(CLONE_NEWPID) only affects children the
	// calling thread forks afterward, never the caller itself. So this
	// process, if asked to join one, sets the membership up and then
	// relaunches a fresh copy of itself — that copy is the one that
	// actually lands inside the target namespace and drives the rest of
	// the handshake. Everything else (CreateNew) is already in effect by
	// the time this function runs: it was applied via Cloneflags at the
	// clone(2) that produced this very process, before the Go runtime
	// even started.
	if fd := envFd(envPidnsFd); fd >= 0 {
		return relaunchInPidNamespace(fd)
	}
	if os.Getenv(envInit) == "0" {
		return runExecHandshake()
	}
	return runHandshake()
}

func relaunchInPidNamespace(pidnsFd int) error {
	runtime.LockOSThread()
	if err := unix.Setns(pidnsFd, unix.CLONE_NEWPID); err != nil {
		return fmt.Errorf("joining pid namespace: %w", err)
	}
	unix.Close(pidnsFd)

	cmd := exec.Command("/proc/self/exe", "init")
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr

	var extra []*os.File
	addFd := func(fd int, name string) (fdStr string) {
		if fd < 0 {
			return ""
		}
		extra = append(extra, os.NewFile(uintptr(fd), name))
		return strconv.Itoa(2 + len(extra))
	}

	env := filterEnv(os.Environ(), envChildReadFd, envChildWriteFd, envChildLogFd,
		envConsoleSockFd, envFifoFd, envPidnsFd, envPidnsEnabled, envBootstrapFd)
	if v := addFd(envFd(envChildReadFd), "sync-r"); v != "" {
		env = append(env, envChildReadFd+"="+v)
	}
	if v := addFd(envFd(envChildWriteFd), "sync-w"); v != "" {
		env = append(env, envChildWriteFd+"="+v)
	}
	if v := addFd(envFd(envChildLogFd), "log-w"); v != "" {
		env = append(env, envChildLogFd+"="+v)
	}
	if v := addFd(envFd(envConsoleSockFd), "console"); v != "" {
		env = append(env, envConsoleSockFd+"="+v)
	}
	if v := addFd(envFd(envFifoFd), "fifo"); v != "" {
		env = append(env, envFifoFd+"="+v)
	}
	if v := addFd(envFd(envBootstrapFd), "bootstrap-r"); v != "" {
		env = append(env, envBootstrapFd+"="+v)
	}
	env = append(env, envPidnsEnabled+"=1")

	cmd.Env = env
	cmd.ExtraFiles = extra

	// cmd.Start forks from this exact, os-thread-locked goroutine: since
	// the calling thread already joined the target pid namespace above,
	// the forked child is born a member of it (pid_namespaces(7)).
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("relaunching inside pid namespace: %w", err)
	}
	err := cmd.Wait()
	if exitErr, ok := err.(*exec.ExitError); ok {
		os.Exit(exitErr.ExitCode())
	}
	if err != nil {
		return err
	}
	os.Exit(0)
	return nil
}

func filterEnv(env []string, drop ...string) []string {
	out := env[:0:0]
	for _, e := range env {
		keep := true
		for _, d := range drop {
			if len(e) > len(d) && e[:len(d)+1] == d+"=" {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, e)
		}
	}
	return out
}

// runExecHandshake drives the child's side of the elided exec handshake:
// join the already-running container's namespaces from the JOIN_<KIND> env
// vars a setnsProcess set (pid was joined earlier, before this function
// runs, for the reason documented on relaunchInPidNamespace), exchange the
// process descriptor and continue/ready-to-exec signals, then execve. No
// config, no cgroup manager, no id maps, no hooks.
func runExecHandshake() error {
	crfd, cwfd := envFd(envChildReadFd), envFd(envChildWriteFd)
	if crfd < 0 || cwfd < 0 {
		return fmt.Errorf("missing sync channel file descriptors")
	}
	sync := newSyncChannel(os.NewFile(uintptr(crfd), "sync-r"), os.NewFile(uintptr(cwfd), "sync-w"))

	if err := joinNamedNamespaces(); err != nil {
		return err
	}

	procPayload, err := sync.expectData(2)
	if err != nil {
		return err
	}
	var proc initProcessMessage
	if jerr := json.Unmarshal(procPayload, &proc); jerr != nil {
		_ = sync.ack(2, jerr)
		return jerr
	}
	if err := sync.ack(2, nil); err != nil {
		return err
	}

	if proc.Console {
		if err := setupConsoleFromEnv(2); err != nil {
			return err
		}
	}

	if err := sync.expectSignal(9, syncContinue); err != nil {
		return err
	}
	if err := sync.sendSignal(11, syncReadyToExec); err != nil {
		return err
	}
	return execWorkload(&proc, "")
}

// joinNamedNamespaces setns-es into every JOIN_<KIND> path a setnsProcess
// recorded in the environment, for every kind but pid (handled earlier by
// relaunchInPidNamespace).
func joinNamedNamespaces() error {
	for _, kind := range configs.NamespaceTypes() {
		if kind == configs.NEWPID {
			continue
		}
		path := os.Getenv("JOIN_" + namespaceEnvName(kind))
		if path == "" {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s namespace %s: %w", kind, path, err)
		}
		err = unix.Setns(int(f.Fd()), 0)
		f.Close()
		if err != nil {
			return fmt.Errorf("joining %s namespace: %w", kind, err)
		}
	}
	return nil
}

// runHandshake drives the child's side of the eleven-step handshake: read
// 1-4 in order, acking 1-3; perform the namespace plan; signal
// user-namespace-ready; block for continue; exchange the hook
// sub-handshake if this is the init process; signal ready-to-exec; execve.
func runHandshake() error {
	crfd, cwfd := envFd(envChildReadFd), envFd(envChildWriteFd)
	if crfd < 0 || cwfd < 0 {
		return fmt.Errorf("missing sync channel file descriptors")
	}
	sync := newSyncChannel(os.NewFile(uintptr(crfd), "sync-r"), os.NewFile(uintptr(cwfd), "sync-w"))

	if logfd := envFd(envChildLogFd); logfd >= 0 {
		installChildLogger(os.NewFile(uintptr(logfd), "log-w"))
	}

	if bfd := envFd(envBootstrapFd); bfd >= 0 {
		bf := os.NewFile(uintptr(bfd), "bootstrap-r")
		if payload, err := io.ReadAll(bf); err == nil {
			logBootstrap(payload)
		}
		bf.Close()
	}

	// Step 1: OCI spec.
	cfgPayload, err := sync.expectData(1)
	if err != nil {
		return err
	}
	var cfg configs.Config
	if jerr := json.Unmarshal(cfgPayload, &cfg); jerr != nil {
		_ = sync.ack(1, jerr)
		return jerr
	}
	if err := sync.ack(1, nil); err != nil {
		return err
	}

	// Step 2: process descriptor.
	procPayload, err := sync.expectData(2)
	if err != nil {
		return err
	}
	var proc initProcessMessage
	if jerr := json.Unmarshal(procPayload, &proc); jerr != nil {
		_ = sync.ack(2, jerr)
		return jerr
	}
	if err := sync.ack(2, nil); err != nil {
		return err
	}

	// Step 3: OCI state document. Not otherwise consumed by the child in
	// this core; a future collaborator that needs the runtime state
	// in-band (e.g. a filesystem helper) would read it here.
	if _, err := sync.expectData(3); err != nil {
		return err
	}
	if err := sync.ack(3, nil); err != nil {
		return err
	}

	// Step 4: cgroup manager. No ack: the parent's next read is this
	// side's "user-namespace ready" signal.
	if _, err := sync.expectData(4); err != nil {
		return err
	}

	if err := joinNamespaces(cfg.Namespaces); err != nil {
		return err
	}

	if proc.Console {
		if err := setupConsoleFromEnv(4); err != nil {
			return err
		}
	}

	// Step 5.
	if err := sync.sendSignal(5, syncUserNsReady); err != nil {
		return err
	}

	// Step 9.
	if err := sync.expectSignal(9, syncContinue); err != nil {
		return err
	}

	// Step 10, init only.
	if proc.Init {
		if err := sync.sendSignal(10, syncHooksReady); err != nil {
			return err
		}
		if err := sync.expectSignal(10, syncHooksDone); err != nil {
			return err
		}
	}

	// Step 11.
	if err := sync.sendSignal(11, syncReadyToExec); err != nil {
		return err
	}

	// This process was forked by `container create`, which returns to
	// its caller once the handshake above completes, well before the
	// workload actually runs. The child blocks here until a later
	// `container start` opens the FIFO for writing.
	if err := waitExecFifo(); err != nil {
		return err
	}

	return execWorkload(&proc, cfg.ProcessLabel)
}

// waitExecFifo blocks on a read-only open of the exec FIFO the coordinator
// handed down via FIFO_FD, if any (it is absent for every non-init exec
// process; `container run` passes it too and releases it with its own
// Start call). The FIFO is
// passed as an O_PATH descriptor so the parent's own open of it never
// blocks; re-opening it here via /proc/self/fd does block, which is the
// synchronization point.
func waitExecFifo() error {
	fd := envFd(envFifoFd)
	if fd < 0 {
		return nil
	}
	f, err := os.OpenFile(fmt.Sprintf("/proc/self/fd/%d", fd), os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("opening exec fifo: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading exec fifo: %w", err)
	}
	if len(data) > 0 {
		return fmt.Errorf("exec fifo: unexpected data")
	}
	return nil
}

// joinNamespaces performs the setns side of the namespace plan. CreateNew
// entries need no action here: Cloneflags already took effect at this
// process's own clone(2) (or, for pid, at the relaunch in
// relaunchInPidNamespace). Only Join entries for non-pid kinds are handled
// here; pid join is handled earlier, before the handshake even starts, for
// the reason documented on relaunchInPidNamespace.
func joinNamespaces(ns configs.Namespaces) error {
	plan, err := configs.ResolvePlan(ns)
	if err != nil {
		return err
	}
	defer plan.Close()

	for _, e := range plan {
		if e.Kind == configs.NEWPID || e.Action != configs.ActionJoin || e.JoinFd == nil {
			continue
		}
		if err := unix.Setns(int(e.JoinFd.Fd()), 0); err != nil {
			return fmt.Errorf("joining %s namespace: %w", e.Kind, err)
		}
	}
	return nil
}

// setupConsoleFromEnv builds the console sidecar channel from the fd the
// coordinator passed in envConsoleSockFd and drives setupConsole over it.
func setupConsoleFromEnv(step int) error {
	fd := envFd(envConsoleSockFd)
	if fd < 0 {
		return fmt.Errorf("console requested but no console sidecar file descriptor was passed")
	}
	sidecar := newFdChannel(os.NewFile(uintptr(fd), "console-sidecar-child"))
	return setupConsole(sidecar, step)
}

// setupConsole allocates a pty, sends its master end back to the
// coordinator over the console sidecar channel (SCM_RIGHTS, generalizing
// the same ancillary-data technique a seccomp notify fd handoff would use),
// then claims the slave end as this process's controlling terminal and
// wires it onto stdin/stdout/stderr.
func setupConsole(sidecar *fdChannel, step int) error {
	master, slavePath, err := NewConsole()
	if err != nil {
		return fmt.Errorf("allocating console: %w", err)
	}
	masterFile := os.NewFile(master.Fd(), master.Name())
	sendErr := sidecar.sendFd(step, syncConsoleFd, int(masterFile.Fd()))
	masterFile.Close()
	if sendErr != nil {
		return fmt.Errorf("sending console master fd: %w", sendErr)
	}

	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening console slave %s: %w", slavePath, err)
	}
	defer slave.Close()

	if _, err := unix.Setsid(); err != nil {
		return fmt.Errorf("setsid: %w", err)
	}
	if err := unix.IoctlSetInt(int(slave.Fd()), unix.TIOCSCTTY, 0); err != nil {
		return fmt.Errorf("setting controlling terminal: %w", err)
	}
	for _, fd := range []int{0, 1, 2} {
		if err := unix.Dup2(int(slave.Fd()), fd); err != nil {
			return fmt.Errorf("dup2 console slave onto fd %d: %w", fd, err)
		}
	}
	return nil
}

func installChildLogger(w *os.File) {
	logrus.SetOutput(w)
	logrus.SetFormatter(&logrus.JSONFormatter{})
}

// execWorkload replaces this process's image with the container's
// workload. It is the last action the child ever takes. If label is set
// and the host has SELinux enabled, the process's exec label is set first
// so the new image execves already carrying it.
func execWorkload(proc *initProcessMessage, label string) error {
	if proc.Cwd != "" {
		if err := os.Chdir(proc.Cwd); err != nil {
			return fmt.Errorf("chdir %q: %w", proc.Cwd, err)
		}
	}
	if label != "" && selinux.GetEnabled() {
		if err := selinux.SetExecLabel(label); err != nil {
			return fmt.Errorf("setting selinux exec label: %w", err)
		}
	}
	path := proc.Args[0]
	if resolved, err := exec.LookPath(path); err == nil {
		path = resolved
	}
	return syscall.Exec(path, proc.Args, proc.Env)
}
