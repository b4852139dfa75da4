package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/commands"
)

// version is set via a build-time ldflags override, "dev" otherwise.
var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "runcell"
	app.Usage = "a minimal OCI-compatible container runtime core"
	app.Version = version

	app.Flags = []cli.Flag{
 cli.StringFlag{Name: "root", Usage: "root directory for container state (default /run/runcell)"},
 cli.StringFlag{Name: "bundle-root", Usage: "base directory under which bundles are created"},
 cli.StringFlag{Name: "log", Usage: "log file path (default: stderr)"},
 cli.StringFlag{Name: "log-format", Value: "text", Usage: "text or json"},
 cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
	}

	app.Before = func(context *cli.Context) error {
 if context.GlobalBool("debug") {
 logrus.SetLevel(logrus.DebugLevel)
 }
 if context.GlobalString("log-format") == "json" {
 logrus.SetFormatter(&logrus.JSONFormatter{})
 }
 if path := context.GlobalString("log"); path != "" {
 f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
 if err != nil {
 return err
 }
 logrus.SetOutput(f)
 }
 return nil
	}

	app.Commands = []cli.Command{
 commands.CreateCommand,
 commands.RunCommand,
 commands.StartCommand,
 commands.DeleteCommand,
 commands.ListCommand,
 commands.ExecCommand,
 commands.PauseCommand,
 commands.ResumeCommand,
 commands.StatsCommand,
 commands.StateCommand,
 commands.SpecCommand,
 commands.InitCommand,
	}

	if err := app.Run(os.Args); err != nil {
 fmt.Fprintln(os.Stderr, err)
 os.Exit(1)
	}
}
