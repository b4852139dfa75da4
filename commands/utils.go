// Package commands implements the CLI surface named in the on-disk layout
// contract: create, run, start, delete, list, exec, and the hidden init
// subcommand, wired with urfave/cli.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/urfave/cli"

	"github.com/DragonOS-Community/runcell/libcontainer"
	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

const specConfig = "config.json"

// Root returns the --root global flag value, defaulting to the on-disk
// layout's state base.
func Root(context *cli.Context) string {
	if r := context.GlobalString("root"); r != "" {
 return r
	}
	return "/run/runcell"
}

// bundlePath returns the --bundle directory for an id under the bundle
// base, or the explicit bundle override if one was given.
func bundlePath(context *cli.Context, id string) string {
	if b := context.String("bundle"); b != "" {
 return b
	}
	return filepath.Join(bundleBase(context), id)
}

func bundleBase(context *cli.Context) string {
	if b := context.GlobalString("bundle-root"); b != "" {
 return b
	}
	return "/run/runcell/bundles"
}

// checkArgs is a positional-argument-count gate: exactArgs requires
// precisely n positional args, minArgs requires at least n.
const (
	exactArgs = iota
	minArgs
)

func checkArgs(context *cli.Context, expected, kind int) error {
	n := context.NArg()
	var ok bool
	switch kind {
	case exactArgs:
 ok = n == expected
	case minArgs:
 ok = n >= expected
	}
	if !ok {
 return fmt.Errorf("invalid number of positional arguments: expected %d, got %d", expected, n)
	}
	return nil
}

// loadBundleConfig reads and parses a bundle's config.json into an OCI
// specs.Spec,.
func loadBundleConfig(bundle string) (*specs.Spec, error) {
	data, err := os.ReadFile(filepath.Join(bundle, specConfig))
	if err != nil {
 if os.IsNotExist(err) {
 return nil, fmt.Errorf("%s not found in %s", specConfig, bundle)
 }
 return nil, err
	}
	var spec specs.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
 return nil, fmt.Errorf("parsing %s: %w", specConfig, err)
	}
	return &spec, nil
}

// configFromSpec translates an OCI specs.Spec plus its bundle directory
// into the internal configs.Config the bootstrap coordinator consumes,
// projecting the OCI document into our own wire type rather than mutating
// it in place.
func configFromSpec(spec *specs.Spec, bundle, id string) (*configs.Config, error) {
	if spec.Root == nil {
 return nil, fmt.Errorf("configuration error: spec has no root filesystem")
	}
	rootfs := spec.Root.Path
	if !filepath.IsAbs(rootfs) {
 rootfs = filepath.Join(bundle, rootfs)
	}

	cfg := &configs.Config{
 Rootfs: rootfs,
 Readonlyfs: spec.Root.Readonly,
	}

	if spec.Linux != nil {
 ns, err := configs.NamespacesFromOCI(spec.Linux.Namespaces)
 if err != nil {
 return nil, err
 }
 cfg.Namespaces = ns

 for _, m := range spec.Linux.UIDMappings {
 cfg.UIDMappings = append(cfg.UIDMappings, configs.IDMap{
 ContainerID: int64(m.ContainerID), HostID: int64(m.HostID), Size: int64(m.Size),
 })
 }
 for _, m := range spec.Linux.GIDMappings {
 cfg.GIDMappings = append(cfg.GIDMappings, configs.IDMap{
 ContainerID: int64(m.ContainerID), HostID: int64(m.HostID), Size: int64(m.Size),
 })
 }

 cfg.MaskPaths = spec.Linux.MaskedPaths
 cfg.ReadonlyPaths = spec.Linux.ReadonlyPaths
 cfg.Capabilities = spec.Process.Capabilities
 cfg.Seccomp = spec.Linux.Seccomp

 if spec.Linux.CgroupsPath != "" || spec.Linux.Resources != nil {
 cfg.Cgroups = &configs.Cgroup{
 Name: id,
 Path: spec.Linux.CgroupsPath,
 Driver: configs.Cgroupfs,
 }
 if spec.Linux.Resources != nil {
 cfg.Cgroups.Resources = resourcesFromOCI(spec.Linux.Resources)
 }
 }

 if spec.Hooks != nil {
 hooks := configs.Hooks{}
 for name, list := range map[configs.HookName][]specs.Hook{
 configs.Prestart: spec.Hooks.Prestart,
 configs.Poststart: spec.Hooks.Poststart,
 configs.Poststop: spec.Hooks.Poststop,
 } {
 hl, err := configs.FromOCI(list, bundle)
 if err != nil {
 return nil, err
 }
 hooks[name] = hl
 }
 cfg.Hooks = hooks
 }
	}

	if spec.Hostname != "" {
 cfg.Hostname = spec.Hostname
	}

	for _, m := range spec.Mounts {
 cfg.Mounts = append(cfg.Mounts, &configs.Mount{
 Source: m.Source, Destination: m.Destination, Options: m.Options,
 })
	}

	if spec.Annotations != nil {
 cfg.Labels = spec.Annotations
	}

	return cfg, nil
}

func resourcesFromOCI(r *specs.LinuxResources) *configs.Resources {
	out := &configs.Resources{}
	if r.Memory != nil {
 if r.Memory.Limit != nil {
 out.Memory = *r.Memory.Limit
 }
 if r.Memory.Swap != nil {
 out.MemorySwap = *r.Memory.Swap
 }
	}
	if r.CPU != nil {
 if r.CPU.Shares != nil {
 out.CpuShares = *r.CPU.Shares
 }
 if r.CPU.Quota != nil {
 out.CpuQuota = *r.CPU.Quota
 }
 if r.CPU.Period != nil {
 out.CpuPeriod = *r.CPU.Period
 }
 if r.CPU.Cpus != "" {
 out.CpusetCpus = r.CPU.Cpus
 }
 if r.CPU.Mems != "" {
 out.CpusetMems = r.CPU.Mems
 }
	}
	if r.Pids != nil {
 out.PidsLimit = r.Pids.Limit
	}
	return out
}

// processFromSpec builds the Process descriptor for a container's init
// process from the OCI spec, wiring in -t/-i as requested.
func processFromSpec(spec *specs.Spec, init bool, tty, stdin bool) *libcontainer.Process {
	p := &libcontainer.Process{
 Args: spec.Process.Args,
 Env: spec.Process.Env,
 Cwd: spec.Process.Cwd,
 Init: init,
	}
	if spec.Process.User.UID != 0 || spec.Process.User.GID != 0 {
 p.User = fmt.Sprintf("%d:%d", spec.Process.User.UID, spec.Process.User.GID)
	}
	if stdin {
 p.Stdin = os.Stdin
	}
	p.Tty = tty
	if !tty {
 p.Stdout = os.Stdout
 p.Stderr = os.Stderr
	}
	// When tty is set, Stdout/Stderr are deliberately left nil here: the
	// child allocates a pty and dup2's its slave end onto its own
	// stdin/stdout/stderr after namespace setup (see setupConsole in
	// init_linux.go), so this process's own stdio streams are never
	// connected to the workload at all.
	return p
}

// fatal reports err to stderr and exits non-zero.
func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
