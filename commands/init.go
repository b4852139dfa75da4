package commands

import (
	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/libcontainer"
)

// InitCommand is the hidden re-exec entry point: the coordinator launches
// "/proc/self/exe init" as the child side of the bootstrap handshake. It is
// never invoked directly by a user.
var InitCommand = cli.Command{
	Name: "init",
	Usage: "container init process (internal)",
	Hidden: true,
	Action: func(context *cli.Context) error {
 libcontainer.Init()
 return nil
	},
}
