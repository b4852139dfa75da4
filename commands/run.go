package commands

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/libcontainer"
)

// RunCommand implements `container run --id ID --image SRC [-t][-i][-d] --
// CMD [ARGS...]`: create immediately followed by start, with no externally
// observable Created window.
var RunCommand = cli.Command{
	Name: "run",
	Usage: "create and start a container in one step",
	ArgsUsage: "-- CMD [ARGS...]",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "id", Usage: "container id"},
		cli.StringFlag{Name: "image", Usage: "image source (accepted but not used; the root filesystem comes from --rootfs or the bundle)"},
		cli.StringFlag{Name: "rootfs", Usage: "path to an already-prepared root filesystem"},
		cli.StringFlag{Name: "bundle, b", Usage: "path to the bundle directory"},
		cli.StringFlag{Name: "console-socket", Usage: "path of an AF_UNIX socket to receive the console master fd"},
		cli.StringFlag{Name: "memory, m", Usage: "memory limit, e.g. 512m or 2GiB"},
		cli.BoolFlag{Name: "tty, t", Usage: "allocate a pseudo terminal"},
		cli.BoolFlag{Name: "interactive, i", Usage: "keep stdin open"},
		cli.BoolFlag{Name: "detach, d", Usage: "run the container in the background"},
	},
	Action: func(context *cli.Context) error {
		id := context.String("id")
		if id == "" {
			return fmt.Errorf("--id is required")
		}

		// A foreground `-t` run with no explicit --console-socket gets one
		// of its own: listen on an internal path, hand that path to
		// doCreate the same way an external caller's would flow in, and
		// pump the accepted master fd against this process's own stdio.
		var sock *net.UnixListener
		if context.Bool("tty") && !context.Bool("detach") && context.String("console-socket") == "" {
			path := consoleSocketListenPath(context, id)
			l, err := libcontainer.ListenConsoleSocket(path)
			if err != nil {
				return err
			}
			sock = l
			if err := context.Set("console-socket", path); err != nil {
				sock.Close()
				return err
			}
		}

		c, process, err := doCreate(context, id)
		if err != nil {
			if sock != nil {
				sock.Close()
			}
			return err
		}

		if sock != nil {
			go pumpConsole(sock)
		}

		if err := c.Start(); err != nil {
			_ = c.Delete()
			return err
		}
		if context.Bool("detach") {
			return nil
		}

		state, err := process.Wait()
		if err != nil {
			return err
		}
		_ = c.Delete()
		if !state.Success() {
			return cli.NewExitError("", state.ExitCode())
		}
		return nil
	},
}

// pumpConsole accepts the one connection the container's coordinator makes
// to sock (SendConsole, once the child has handed it the pty master), then
// relays bytes between the pty master it hands over and this
// process's own stdio until either side closes.
func pumpConsole(sock *net.UnixListener) {
	master, err := libcontainer.RecvConsole(sock)
	sock.Close()
	if err != nil {
		return
	}
	defer master.Close()
	go io.Copy(master, os.Stdin)
	io.Copy(os.Stdout, master)
}
