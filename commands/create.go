package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/libcontainer"
	"github.com/DragonOS-Community/runcell/libcontainer/cgroups"
	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

// CreateCommand implements `container create --id ID --rootfs PATH
// [--bundle PATH]`: it prepares the bundle and config, forks the init
// process through the bootstrap coordinator, and leaves it blocked on the
// exec FIFO. No workload runs until a matching `start`.
var CreateCommand = cli.Command{
	Name: "create",
	Usage: "create a container without starting it",
	ArgsUsage: "",
	Flags: []cli.Flag{
 cli.StringFlag{Name: "id", Usage: "container id"},
 cli.StringFlag{Name: "rootfs", Usage: "path to the root filesystem"},
 cli.StringFlag{Name: "bundle, b", Usage: "path to the bundle directory (defaults under --bundle-root)"},
 cli.StringFlag{Name: "console-socket", Usage: "path of an AF_UNIX socket to receive the console master fd"},
 cli.BoolFlag{Name: "tty, t", Usage: "allocate a pseudo terminal for the container"},
 cli.StringFlag{Name: "memory, m", Usage: "memory limit, e.g. 512m or 2GiB"},
	},
	Action: func(context *cli.Context) error {
 if err := checkArgs(context, 0, exactArgs); err != nil {
 return err
 }
 id := context.String("id")
 if id == "" {
 return fmt.Errorf("--id is required")
 }
 _, _, err := doCreate(context, id)
 return err
	},
}

// doCreate is shared between `create` and `run`. It returns the Process
// handle alongside the Container record so a foreground `run` can Wait on
// it once Start has released the blocked child.
func doCreate(context *cli.Context, id string) (*libcontainer.Container, *libcontainer.Process, error) {
	bundle := bundlePath(context, id)
	if rootfs := context.String("rootfs"); rootfs != "" {
 if err := prepareBundle(bundle, rootfs); err != nil {
 return nil, nil, err
 }
	}

	spec, err := loadBundleConfig(bundle)
	if err != nil {
 return nil, nil, err
	}
	cfg, err := configFromSpec(spec, bundle, id)
	if err != nil {
 return nil, nil, err
	}
	if raw := context.String("memory"); raw != "" {
 limit, err := cgroups.ParseMemory(raw)
 if err != nil {
 return nil, nil, fmt.Errorf("configuration error: parsing --memory %q: %w", raw, err)
 }
 if cfg.Cgroups == nil {
 cfg.Cgroups = &configs.Cgroup{Name: id, Driver: configs.Cgroupfs}
 }
 if cfg.Cgroups.Resources == nil {
 cfg.Cgroups.Resources = &configs.Resources{}
 }
 cfg.Cgroups.Resources.Memory = limit
	}

	process := processFromSpec(spec, true, context.Bool("tty"), context.Bool("interactive"))
	if args := context.Args(); len(args) > 0 {
 process.Args = args
	}
	if process.Tty {
 process.ConsoleSocketPath = context.String("console-socket")
 if process.ConsoleSocketPath == "" {
 return nil, nil, fmt.Errorf("configuration error: --tty requires --console-socket")
 }
	}

	c, err := libcontainer.CreateContainer(Root(context), bundle, id, cfg, process)
	if err != nil {
 return nil, nil, err
	}
	return c, process, nil
}

// prepareBundle materializes a minimal bundle directory (config.json) for
// the `--rootfs` shorthand path of `create`/`run`, when no pre-existing
// bundle with its own config.json is supplied.
func prepareBundle(bundle, rootfs string) error {
	if err := os.MkdirAll(bundle, 0o755); err != nil {
 return err
	}
	cfgPath := filepath.Join(bundle, specConfig)
	if _, err := os.Stat(cfgPath); err == nil {
 return nil
	}
	return writeDefaultSpec(cfgPath, rootfs)
}

func consoleSocketListenPath(context *cli.Context, id string) string {
	return filepath.Join(Root(context), id, "console.sock")
}
