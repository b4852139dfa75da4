package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/libcontainer"
	"github.com/DragonOS-Community/runcell/libcontainer/cgroups"
)

// StatsCommand implements `container stats --id ID [--format table|json]`:
// a point-in-time resource usage snapshot read from the container's cgroup.
var StatsCommand = cli.Command{
	Name: "stats",
	Usage: "display resource usage statistics for a container",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "id", Usage: "container id"},
		cli.StringFlag{Name: "format, f", Value: "table", Usage: "table or json"},
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
		stats, err := c.Stats()
		if err != nil {
			return err
		}

		switch context.String("format") {
		case "json":
			return json.NewEncoder(os.Stdout).Encode(stats)
		default:
			fmt.Println(cgroups.FormatStats(stats))
			return nil
		}
	},
}
