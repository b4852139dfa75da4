package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/libcontainer"
)

// StateCommand implements `container state --id ID`: it prints the OCI
// runtime state document to stdout, refreshing liveness first.
var StateCommand = cli.Command{
	Name: "state",
	Usage: "output the state of a container",
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
		state, err := c.OCIState()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", " ")
		return enc.Encode(state)
	},
}
