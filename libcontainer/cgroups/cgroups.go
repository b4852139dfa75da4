// Package cgroups defines the pluggable cgroup manager interface
// (component D) and the filesystem-backed implementation this core ships.
package cgroups

import (
	"fmt"

	units "github.com/docker/go-units"

	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

// ParseMemory parses a human memory size (e.g. "512m", "2GiB") as accepted
// by a resources.memory CLI flag or config field into bytes.
func ParseMemory(s string) (int64, error) {
	return units.RAMInBytes(s)
}

// FormatStats renders a Stats snapshot as a human-readable summary line, used
// by the `container stats` CLI output.
func FormatStats(s *Stats) string {
	return fmt.Sprintf("mem=%s pids=%d/%s cpu=%dus",
 units.BytesSize(float64(s.Memory.Usage)),
 s.Pids.Current, pidsLimitString(s.Pids.Limit),
 s.CPU.UsageUsec)
}

func pidsLimitString(limit uint64) string {
	if limit == 0 {
 return "max"
	}
	return fmt.Sprintf("%d", limit)
}

// MemoryStats, CPUStats, BlkioStats and PidsStats make up the Stats
// snapshot returned by Manager.Stats; it carries no network counters.
type MemoryStats struct {
	Usage uint64 `json:"usage"`
	Limit uint64 `json:"limit"`
	MaxUsage uint64 `json:"max_usage"`
}

type CPUStats struct {
	UsageUsec uint64 `json:"usage_usec"`
	UserUsec uint64 `json:"user_usec"`
	SystemUsec uint64 `json:"system_usec"`
}

type BlkioStats struct {
	ReadBytes uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
}

type PidsStats struct {
	Current uint64 `json:"current"`
	Limit uint64 `json:"limit"`
}

// Stats is the point-in-time snapshot returned by Manager.Stats.
type Stats struct {
	Memory MemoryStats `json:"memory"`
	CPU CPUStats `json:"cpu"`
	Blkio BlkioStats `json:"blkio"`
	Pids PidsStats `json:"pids"`
}

// Manager is the capability set every cgroup driver backend implements.
// Only the resolved Paths and the rootless flag cross the parent/child
// boundary (sync message 4, cgroupManagerWire in libcontainer/process_linux.go);
// that wire form carries no backend tag, so the receiving side cannot tell
// which driver produced it. *fs.Manager is the only backend.
type Manager interface {
	// Apply attaches pid to this manager's cgroups. Idempotent for the same
	// pid.
	Apply(pid int) error

	// Set installs resource limits. update is false on initial creation,
	// true for subsequent calls.
	Set(resources *configs.Resources, update bool) error

	// Destroy removes every cgroup directory owned by this manager.
	Destroy() error

	// Stats returns a point-in-time resource usage snapshot.
	Stats() (*Stats, error)

	// Freeze and Thaw toggle the freezer control backing pause/resume.
	Freeze() error
	Thaw() error

	// Paths returns the cgroup directory path for the given controller (fs
	// cgroup v1) or the unified hierarchy (fs cgroup v2), for callers (like
	// setns exec) that need to join an existing container's cgroups
	// directly rather than through a Manager value.
	Paths() map[string]string
}

// Ordering contract: for filesystem-cgroup managers Apply and Set may be
// issued in either order; a hypothetical systemd driver would require
// Apply before Set, since systemd units are created by their first member.
// The bootstrap coordinator always issues Apply before Set regardless of
// driver, so this constraint never actually distinguishes correct from
// incorrect coordinator behavior — it is enforced here only as
// documentation for anyone adding a second driver.
