// Package configs provides the container-related configuration types shared
// between the bootstrap coordinator (parent) and the container init (child).
package configs

import (
	"github.com/opencontainers/runtime-spec/specs-go"
)

// Rlimit mirrors a single POSIX resource limit entry from the OCI spec.
type Rlimit struct {
	Type int `json:"type"`
	Hard uint64 `json:"hard"`
	Soft uint64 `json:"soft"`
}

// IDMap is one line of a uid_map or gid_map: map Size ids starting at
// ContainerID (inside the namespace) to HostID (outside it). A Size of 0
// means the entry is elided when the map is written.
type IDMap struct {
	ContainerID int64 `json:"container_id"`
	HostID int64 `json:"host_id"`
	Size int64 `json:"size"`
}

// Mount describes one OCI mount point. The mount syscalls themselves are out
// of scope for this core; the bootstrap coordinator only needs
// enough of the mount to classify namespace-affecting concerns and to hand
// the full list to the out-of-scope rootfs collaborator.
type Mount struct {
	Source string `json:"source"`
	Destination string `json:"destination"`
	Device string `json:"device"`
	Flags int `json:"flags"`
	Data string `json:"data"`
	Options []string `json:"options,omitempty"`
}

// Config is the parent's in-memory view of a single container's OCI
// configuration, plus the subset of libcontainer-internal bookkeeping the
// bootstrap coordinator and container record need. It is sent to the child
// as sync message 1.
type Config struct {
	// Rootfs is the path to the container's root filesystem, produced by the
	// (out of scope) storage collaborator.
	Rootfs string `json:"rootfs"`

	// NoPivotRoot requests MS_MOVE + chroot instead of pivot_root; applied by
	// the (out of scope) child-side mount setup.
	NoPivotRoot bool `json:"no_pivot_root,omitempty"`

	// ParentDeathSignal is carried to the child with the rest of the config;
	// nothing in this module sets it as the init process's parent-death
	// signal.
	ParentDeathSignal int `json:"parent_death_signal,omitempty"`

	// Readonlyfs remounts rootfs read-only for everything but explicit binds.
	Readonlyfs bool `json:"readonlyfs,omitempty"`

	// Hostname and Domainname are carried to the child with the rest of the
	// config; nothing in this module applies them to the uts namespace.
	Hostname string `json:"hostname,omitempty"`
	Domainname string `json:"domainname,omitempty"`

	// Mounts are passed through to the (out of scope) mount syscall wrappers.
	Mounts []*Mount `json:"mounts,omitempty"`

	// Namespaces is the namespace plan's source data: the raw OCI
	// linux.namespaces array, before resolution (component B).
	Namespaces Namespaces `json:"namespaces"`

	// Cgroups carries the resource limits and the driver/path selection for
	// component D.
	Cgroups *Cgroup `json:"cgroups"`

	// UIDMappings / GIDMappings back component C.
	UIDMappings []IDMap `json:"uid_mappings,omitempty"`
	GIDMappings []IDMap `json:"gid_mappings,omitempty"`

	// MaskPaths / ReadonlyPaths are forwarded to the (out of scope) mount
	// layer.
	MaskPaths []string `json:"mask_paths,omitempty"`
	ReadonlyPaths []string `json:"readonly_paths,omitempty"`

	// ProcessLabel / AppArmorProfile / Capabilities / Seccomp are recorded
	// here but *applied* by out-of-scope collaborators inside the child.
	ProcessLabel string `json:"process_label,omitempty"`
	AppArmorProfile string `json:"apparmor_profile,omitempty"`
	Capabilities *specs.LinuxCapabilities `json:"capabilities,omitempty"`
	Seccomp *specs.LinuxSeccomp `json:"seccomp,omitempty"`

	// Rlimits are carried to the child with the rest of the config; nothing
	// in this module installs them on the init or exec process.
	Rlimits []Rlimit `json:"rlimits,omitempty"`

	// Hooks to run at lifecycle transitions (component E covers Prestart).
	Hooks Hooks `json:"-"`

	// Labels are free-form annotations surfaced on the OCI state document.
	Labels map[string]string `json:"labels,omitempty"`

	// RootlessEUID/RootlessCgroups: when set, cgroup errors that are a
	// consequence of lacking privilege are tolerated rather than fatal.
	RootlessEUID bool `json:"rootless_euid,omitempty"`
	RootlessCgroups bool `json:"rootless_cgroups,omitempty"`
}

// HasHook reports whether any of the named hook lists is non-empty.
func (c *Config) HasHook(names ...HookName) bool {
	if c.Hooks == nil {
 return false
	}
	for _, n := range names {
 if len(c.Hooks[n]) > 0 {
 return true
 }
	}
	return false
}
