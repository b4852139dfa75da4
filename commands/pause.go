package commands

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/libcontainer"
)

// PauseCommand implements `container pause --id ID`: it freezes the
// container's cgroup, leaving its processes resident but unscheduled.
var PauseCommand = cli.Command{
	Name: "pause",
	Usage: "pause a running container",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "id", Usage: "container id"},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 0, exactArgs); err != nil {
			return err
		}
		id := context.String("id")
		if id == "" {
			return fmt.Errorf("--id is required")
		}
		c, err := libcontainer.LoadContainer(Root(context), id)
		if err != nil {
			return err
		}
		return c.Pause()
	},
}

// ResumeCommand implements `container resume --id ID`: it thaws a
// previously paused container's cgroup.
var ResumeCommand = cli.Command{
	Name: "resume",
	Usage: "resume a paused container",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "id", Usage: "container id"},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 0, exactArgs); err != nil {
			return err
		}
		id := context.String("id")
		if id == "" {
			return fmt.Errorf("--id is required")
		}
		c, err := libcontainer.LoadContainer(Root(context), id)
		if err != nil {
			return err
		}
		return c.Resume()
	},
}
