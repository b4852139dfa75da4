package commands

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/libcontainer"
)

// StartCommand implements `container start --id ID`: releases a container
// previously left blocked by create, transitioning Created -> Running.
var StartCommand = cli.Command{
	Name: "start",
	Usage: "start a previously created container",
	ArgsUsage: "",
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
		return c.Start()
	},
}
