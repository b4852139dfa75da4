package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/libcontainer"
)

// ListCommand implements `container list [--format table|json] [--all]`
// (alias ls): it enumerates the state directory and probes each record's
// liveness the way Container.refreshStatus does.
var ListCommand = cli.Command{
	Name: "list",
	Aliases: []string{"ls"},
	Usage: "list containers",
	Flags: []cli.Flag{
 cli.StringFlag{Name: "format, f", Value: "table", Usage: "table or json"},
 cli.BoolFlag{Name: "all, a", Usage: "include stopped containers"},
	},
	Action: func(context *cli.Context) error {
 summaries, err := libcontainer.ListContainers(Root(context))
 if err != nil {
 return err
 }
 if !context.Bool("all") {
 var filtered []libcontainer.ContainerSummary
 for _, s := range summaries {
 if s.Status != libcontainer.Stopped {
 filtered = append(filtered, s)
 }
 }
 summaries = filtered
 }

 switch context.String("format") {
 case "json":
 return json.NewEncoder(os.Stdout).Encode(summaries)
 default:
 return printTable(summaries)
 }
	},
}

func printTable(summaries []libcontainer.ContainerSummary) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPID\tSTATUS\tBUNDLE\tCREATED")
	for _, s := range summaries {
 fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", s.ID, s.Pid, colorStatus(s.Status), s.Bundle, s.Created.Format("2006-01-02T15:04:05Z"))
	}
	return w.Flush()
}

// colorStatus highlights a container's status the way the pack's CLIs
// polish table output: green for a live container, red once it has
// stopped, plain for the transient states in between.
func colorStatus(s libcontainer.Status) string {
	switch s {
	case libcontainer.Running:
 return color.GreenString(s.String())
	case libcontainer.Stopped:
 return color.RedString(s.String())
	default:
 return s.String()
	}
}
