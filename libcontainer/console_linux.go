package libcontainer

import (
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/containerd/console"
)

// NewConsole allocates a new pty pair for a `-t` process. The caller keeps
// the master end to send onward (see SendConsole); the slave is opened and
// claimed as the child's own controlling terminal (see setupConsole in
// init_linux.go).
func NewConsole() (master console.Console, slavePath string, err error) {
	m, s, err := console.NewPty()
	if err != nil {
		return nil, "", fmt.Errorf("allocating pty: %w", err)
	}
	return m, s, nil
}

// SendConsole passes the master end of a pty across a unix socket via
// SCM_RIGHTS: it dials socketPath, which the receiving side (the caller's
// --console-socket listener) has bound, and sends one fd plus the master's
// name as a small packet. The coordinator is the sending side.
func SendConsole(socketPath string, master *os.File) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("dialing console socket: %w", err)
	}
	defer conn.Close()

	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("console socket connection is not a unix socket")
	}

	oob := syscall.UnixRights(int(master.Fd()))
	if _, _, err := uc.WriteMsgUnix([]byte(master.Name()), oob, nil); err != nil {
		return fmt.Errorf("sending console fd: %w", err)
	}
	return nil
}

// RecvConsole is the receiving side of SendConsole: it accepts one
// connection on a listener bound to socketPath and extracts the master fd
// from the ancillary data.
func RecvConsole(l *net.UnixListener) (*os.File, error) {
	conn, err := l.AcceptUnix()
	if err != nil {
		return nil, fmt.Errorf("accepting console connection: %w", err)
	}
	defer conn.Close()

	buf := make([]byte, 4096)
	oob := make([]byte, 4096)
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, fmt.Errorf("reading console fd: %w", err)
	}
	scms, err := syscall.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, fmt.Errorf("parsing control message: %w", err)
	}
	if len(scms) == 0 {
		return nil, fmt.Errorf("no control message received")
	}
	fds, err := syscall.ParseUnixRights(&scms[0])
	if err != nil {
		return nil, fmt.Errorf("parsing unix rights: %w", err)
	}
	if len(fds) == 0 {
		return nil, fmt.Errorf("no file descriptor received")
	}
	name := string(buf[:n])
	if name == "" {
		name = "console"
	}
	return os.NewFile(uintptr(fds[0]), name), nil
}

// ListenConsoleSocket creates the unix socket the receiving side listens on
// for a RecvConsole handoff, removing any stale socket file left behind by
// a prior run.
func ListenConsoleSocket(path string) (*net.UnixListener, error) {
	os.Remove(path)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	return net.ListenUnix("unix", addr)
}
