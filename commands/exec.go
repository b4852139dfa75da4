package commands

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/libcontainer"
)

// ExecCommand implements `container exec --id ID [-t][-i] -- CMD
// [ARGS...]`: runs an additional process inside an already-running
// container, eliding id-map writes, cgroup Set, and prestart hooks.
var ExecCommand = cli.Command{
	Name: "exec",
	Usage: "execute a new process inside a running container",
	ArgsUsage: "-- CMD [ARGS...]",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "id", Usage: "container id"},
		cli.BoolFlag{Name: "tty, t", Usage: "allocate a pseudo terminal"},
		cli.BoolFlag{Name: "interactive, i", Usage: "keep stdin open"},
		cli.StringFlag{Name: "cwd", Usage: "working directory inside the container"},
		cli.StringFlag{Name: "console-socket", Usage: "path of an AF_UNIX socket to receive the console master fd (required with --tty)"},
	},
	Action: func(context *cli.Context) error {
		id := context.String("id")
		if id == "" {
			return fmt.Errorf("--id is required")
		}
		args := context.Args()
		if len(args) == 0 {
			return fmt.Errorf("no command specified")
		}

		c, err := libcontainer.LoadContainer(Root(context), id)
		if err != nil {
			return err
		}

		process := &libcontainer.Process{
			ExecID: libcontainer.NewExecID(),
			Args: args,
			Env: os.Environ(),
			Cwd: context.String("cwd"),
		}
		if context.Bool("tty") {
			process.Tty = true
			process.ConsoleSocketPath = context.String("console-socket")
			if process.ConsoleSocketPath == "" {
				return fmt.Errorf("configuration error: --tty requires --console-socket")
			}
		} else {
			process.Stdout = os.Stdout
			process.Stderr = os.Stderr
		}
		if context.Bool("interactive") {
			process.Stdin = os.Stdin
		}

		if err := c.Exec(process); err != nil {
			return err
		}
		state, err := process.Wait()
		if err != nil {
			return err
		}
		if !state.Success() {
			return cli.NewExitError("", state.ExitCode())
		}
		return nil
	},
}
