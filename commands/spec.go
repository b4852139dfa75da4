package commands

import (
	"encoding/json"
	"fmt"
	"os"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/urfave/cli"
)

// SpecCommand creates a starter config.json for a bundle: a plain OCI
// default covering exactly the surface this core implements, with no
// sandbox-specific mounts or capability sets.
var SpecCommand = cli.Command{
	Name: "spec",
	Usage: "create a new specification file",
	ArgsUsage: "",
	Description: `The spec command creates a new specification file named "` + specConfig + `" for
the bundle.

The spec generated is just a starter file. Editing of the spec is required
to achieve desired results. For example, the newly generated spec includes
an args parameter that is initially set to call the "sh" command when the
container is started.`,
	Flags: []cli.Flag{
 cli.StringFlag{Name: "bundle, b", Value: "", Usage: "path to the root of the bundle directory"},
	},
	Action: func(context *cli.Context) error {
 if err := checkArgs(context, 0, exactArgs); err != nil {
 return err
 }
 bundle := context.String("bundle")
 if bundle != "" {
 if err := os.MkdirAll(bundle, 0o755); err != nil {
 return err
 }
 if err := os.Chdir(bundle); err != nil {
 return err
 }
 }
 if _, err := os.Stat(specConfig); err == nil {
 return fmt.Errorf("file %s exists, remove it first", specConfig)
 }
 return writeDefaultSpec(specConfig, "rootfs")
	},
}

// writeDefaultSpec writes a minimal but runnable OCI spec document to path,
// rooted at rootfs.
func writeDefaultSpec(path, rootfs string) error {
	spec := defaultSpec(rootfs)
	data, err := json.MarshalIndent(spec, "", "\t")
	if err != nil {
 return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultSpec(rootfs string) *specs.Spec {
	return &specs.Spec{
 Version: specs.Version,
 Process: &specs.Process{
 Terminal: true,
 User: specs.User{UID: 0, GID: 0},
 Args: []string{"sh"},
 Env: []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin", "TERM=xterm"},
 Cwd: "/",
 },
 Root: &specs.Root{
 Path: rootfs,
 Readonly: false,
 },
 Hostname: "runcell",
 Mounts: []specs.Mount{
 {Destination: "/proc", Type: "proc", Source: "proc"},
 {Destination: "/dev", Type: "tmpfs", Source: "tmpfs",
 Options: []string{"nosuid", "strictatime", "mode=755", "size=65536k"}},
 {Destination: "/sys", Type: "sysfs", Source: "sysfs",
 Options: []string{"nosuid", "noexec", "nodev", "ro"}},
 },
 Linux: &specs.Linux{
 Namespaces: []specs.LinuxNamespace{
 {Type: specs.PIDNamespace},
 {Type: specs.NetworkNamespace},
 {Type: specs.IPCNamespace},
 {Type: specs.UTSNamespace},
 {Type: specs.MountNamespace},
 },
 },
	}
}
