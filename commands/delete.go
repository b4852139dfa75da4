package commands

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/libcontainer"
)

// DeleteCommand implements `container delete --id ID` (alias rm): it is
// idempotent — deleting an already-Stopped or unknown container succeeds.
var DeleteCommand = cli.Command{
	Name: "delete",
	Aliases: []string{"rm"},
	Usage: "delete a container",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "id", Usage: "container id"},
		cli.BoolFlag{Name: "force, f", Usage: "ignore errors from an already-deleted container"},
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
			if libcontainer.IsNotFound(err) {
				return nil
			}
			if context.Bool("force") {
				return nil
			}
			return err
		}
		return c.Delete()
	},
}
