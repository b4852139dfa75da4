package libcontainer

import (
	"io"
	"os"

	"github.com/google/uuid"
)

// Process is the public process descriptor describes: an OCI
// process plus whether it is the container's init process. Init is true
// exactly once per container — the first process started; every later exec
// carries Init == false.
type Process struct {
	// ExecID uniquely identifies this process within the container. The
	// init process uses the empty string; an exec process carries whatever
	// the caller sets (the `exec` command fills it with NewExecID).
	ExecID string

	// Args, Env, Cwd mirror the OCI process spec.
	Args []string
	Env []string
	Cwd string

	// Init is true exactly once per container: the first process started.
	Init bool

	User string

	Stdin io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// ExtraFiles are additional inherited file descriptors, exposed to the
	// process starting at fd 3 + len(already-added extra files).
	ExtraFiles []*os.File

	// Tty requests a pty be allocated for this process: the child allocates
	// the pty after namespace setup and wires its slave end onto its own
	// stdin/stdout/stderr, so Stdin/Stdout/Stderr above are left unset in
	// this case.
	Tty bool

	// ConsoleSocketPath, meaningful only when Tty is set, is the path to an
	// external AF_UNIX socket (the CLI's --console-socket) that the pty
	// master fd is sent to via SCM_RIGHTS once allocated. Empty means no
	// external socket: the coordinator closes the master fd as soon as it
	// receives it.
	ConsoleSocketPath string

	// LogLevel is carried to the child in the step-2 process descriptor; the
	// child's structured logger does not apply it.
	LogLevel string

	ops parentProcess
}

// NewExecID generates a fresh identifier for a non-init process descriptor.
func NewExecID() string {
	return uuid.NewString()
}

// Pid returns the process's pid once it is running, or -1 if it never
// started.
func (p *Process) Pid() int {
	if p.ops == nil {
		return -1
	}
	return p.ops.pid()
}

// Signal forwards a signal to the process.
func (p *Process) Signal(sig os.Signal) error {
	if p.ops == nil {
		return errProcessNotStarted
	}
	return p.ops.signal(sig)
}

// Wait waits for the process to exit and returns its final state.
func (p *Process) Wait() (*os.ProcessState, error) {
	if p.ops == nil {
		return nil, errProcessNotStarted
	}
	return p.ops.wait()
}

// IO holds the parent-side ends of a set of stdio pipes.
type IO struct {
	Stdin io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}
