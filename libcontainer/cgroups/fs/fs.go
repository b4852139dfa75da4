// Package fs implements the filesystem cgroup manager: the only backend
// this core ships. It supports both the unified (v2) and
// legacy per-controller (v1) cgroup filesystem layouts. The v1 controller
// mountpoints are located with moby/sys/mountinfo; the v2 hierarchy is
// recognized only as a cgroup2 mount at /sys/fs/cgroup, which is then used
// as its root.
package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"

	"github.com/DragonOS-Community/runcell/libcontainer/cgroups"
	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

const unifiedMountpoint = "/sys/fs/cgroup"

var (
	detectOnce sync.Once
	unified bool
)

// isUnified reports whether the host uses the cgroup v2 unified hierarchy.
// It is detected once per process by looking for a cgroup2 mount at the
// conventional unified mountpoint.
func isUnified() bool {
	detectOnce.Do(func() {
 mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(unifiedMountpoint))
 if err != nil || len(mounts) == 0 {
 return
 }
 unified = mounts[0].FSType == "cgroup2"
	})
	return unified
}

// controllers is the set of legacy v1 controller directories this manager
// manages; a real runc enumerates many more, but these are the ones
// Stats snapshot and Resources type need.
var controllers = []string{"cpu", "cpuset", "memory", "pids", "blkio", "freezer"}

// Manager is the filesystem-backed cgroups.Manager.
type Manager struct {
	Cgroup *configs.Cgroup

	// paths maps controller name ("" for unified) to the cgroup directory.
	paths map[string]string
}

// NewManager resolves the cgroup directory path(s) for cg without creating
// them; Apply creates them lazily on first use.
func NewManager(cg *configs.Cgroup) (*Manager, error) {
	if cg.Driver == configs.Systemd {
 return nil, fmt.Errorf("cgroup driver %q is not supported by the filesystem manager", cg.Driver)
	}

	rel := cg.Path
	if rel == "" {
 rel = filepath.Join("/", cg.Parent, cg.Name)
	}

	m := &Manager{Cgroup: cg, paths: map[string]string{}}
	if isUnified() {
 m.paths[""] = filepath.Join(unifiedMountpoint, rel)
 return m, nil
	}
	for _, c := range controllers {
 mnt, err := controllerMountpoint(c)
 if err != nil {
 // Not every controller is guaranteed mounted (e.g. no
 // "freezer" controller on some kernels); skip it rather than
 // failing the whole manager.
 continue
 }
 m.paths[c] = filepath.Join(mnt, rel)
	}
	return m, nil
}

func controllerMountpoint(controller string) (string, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.FSTypeFilter("cgroup"))
	if err != nil {
 return "", err
	}
	for _, m := range mounts {
 for _, opt := range strings.Split(m.VFSOptions, ",") {
 if opt == controller {
 return m.Mountpoint, nil
 }
 }
	}
	return "", fmt.Errorf("controller %s not mounted", controller)
}

// Paths implements cgroups.Manager.
func (m *Manager) Paths() map[string]string {
	out := make(map[string]string, len(m.paths))
	for k, v := range m.paths {
 out[k] = v
	}
	return out
}

func (m *Manager) ensureDirs() error {
	for _, dir := range m.paths {
 if err := os.MkdirAll(dir, 0o755); err != nil {
 return errors.Wrapf(err, "creating cgroup dir %s", dir)
 }
	}
	return nil
}

// Apply attaches pid to every managed cgroup. Idempotent for the same pid
// (writing the same pid to cgroup.procs twice is a no-op at the kernel
// level), so it may be called before or after Set.
func (m *Manager) Apply(pid int) error {
	if err := m.ensureDirs(); err != nil {
 return err
	}
	for _, dir := range m.paths {
 if err := writeFile(filepath.Join(dir, "cgroup.procs"), strconv.Itoa(pid)); err != nil {
 if m.Cgroup.Rootless {
 continue
 }
 return errors.Wrapf(err, "applying pid %d to %s", pid, dir)
 }
	}
	return nil
}

// Set installs resources. update distinguishes the initial apply-time set
// (update=false) from a later runtime update (update=true); the filesystem
// manager treats both identically since cgroupfs writes are idempotent.
func (m *Manager) Set(r *configs.Resources, update bool) error {
	if r == nil {
 return nil
	}
	if err := m.ensureDirs(); err != nil {
 return err
	}
	if isUnified() {
 return m.setUnified(r)
	}
	return m.setLegacy(r)
}

func (m *Manager) setUnified(r *configs.Resources) error {
	dir := m.paths[""]
	if r.Memory != 0 {
 if err := writeFile(filepath.Join(dir, "memory.max"), strconv.FormatInt(r.Memory, 10)); err != nil {
 return errors.Wrap(err, "setting memory.max")
 }
	}
	if r.CpuQuota != 0 || r.CpuPeriod != 0 {
 quota := "max"
 if r.CpuQuota > 0 {
 quota = strconv.FormatInt(r.CpuQuota, 10)
 }
 period := r.CpuPeriod
 if period == 0 {
 period = 100000
 }
 if err := writeFile(filepath.Join(dir, "cpu.max"), fmt.Sprintf("%s %d", quota, period)); err != nil {
 return errors.Wrap(err, "setting cpu.max")
 }
	}
	if r.PidsLimit != 0 {
 v := "max"
 if r.PidsLimit > 0 {
 v = strconv.FormatInt(r.PidsLimit, 10)
 }
 if err := writeFile(filepath.Join(dir, "pids.max"), v); err != nil {
 return errors.Wrap(err, "setting pids.max")
 }
	}
	if r.CpusetCpus != "" {
 if err := writeFile(filepath.Join(dir, "cpuset.cpus"), r.CpusetCpus); err != nil {
 return errors.Wrap(err, "setting cpuset.cpus")
 }
	}
	return nil
}

func (m *Manager) setLegacy(r *configs.Resources) error {
	if dir, ok := m.paths["memory"]; ok && r.Memory != 0 {
 if err := writeFile(filepath.Join(dir, "memory.limit_in_bytes"), strconv.FormatInt(r.Memory, 10)); err != nil {
 return errors.Wrap(err, "setting memory.limit_in_bytes")
 }
	}
	if dir, ok := m.paths["cpu"]; ok {
 if r.CpuShares != 0 {
 if err := writeFile(filepath.Join(dir, "cpu.shares"), strconv.FormatUint(r.CpuShares, 10)); err != nil {
 return errors.Wrap(err, "setting cpu.shares")
 }
 }
 if r.CpuQuota != 0 {
 if err := writeFile(filepath.Join(dir, "cpu.cfs_quota_us"), strconv.FormatInt(r.CpuQuota, 10)); err != nil {
 return errors.Wrap(err, "setting cpu.cfs_quota_us")
 }
 }
	}
	if dir, ok := m.paths["pids"]; ok && r.PidsLimit != 0 {
 v := "max"
 if r.PidsLimit > 0 {
 v = strconv.FormatInt(r.PidsLimit, 10)
 }
 if err := writeFile(filepath.Join(dir, "pids.max"), v); err != nil {
 return errors.Wrap(err, "setting pids.max")
 }
	}
	if dir, ok := m.paths["cpuset"]; ok && r.CpusetCpus != "" {
 if err := writeFile(filepath.Join(dir, "cpuset.cpus"), r.CpusetCpus); err != nil {
 return errors.Wrap(err, "setting cpuset.cpus")
 }
	}
	return nil
}

// Destroy removes every cgroup directory owned by this manager.
func (m *Manager) Destroy() error {
	var firstErr error
	for _, dir := range m.paths {
 if err := os.Remove(dir); err != nil && !os.IsNotExist(err) && firstErr == nil {
 firstErr = err
 }
	}
	return firstErr
}

// Freeze writes "FROZEN" to freezer.state (v1) or "1" to cgroup.freeze (v2).
func (m *Manager) Freeze() error {
	return m.freezer("FROZEN")
}

// Thaw writes "THAWED" to freezer.state (v1) or "0" to cgroup.freeze (v2).
func (m *Manager) Thaw() error {
	return m.freezer("THAWED")
}

func (m *Manager) freezer(state string) error {
	if isUnified() {
 v := "0"
 if state == "FROZEN" {
 v = "1"
 }
 return writeFile(filepath.Join(m.paths[""], "cgroup.freeze"), v)
	}
	dir, ok := m.paths["freezer"]
	if !ok {
 return fmt.Errorf("freezer controller not available")
	}
	return writeFile(filepath.Join(dir, "freezer.state"), state)
}

// Stats reads back memory usage and the current pids count on both layouts,
// and on v1 also the Read/Write byte totals of blkio.throttle.io_service_bytes.
// CPU counters, memory limit/max usage and the pids limit are not read and
// stay zero.
func (m *Manager) Stats() (*cgroups.Stats, error) {
	s := &cgroups.Stats{}
	if isUnified() {
 dir := m.paths[""]
 s.Memory.Usage, _ = readUint(filepath.Join(dir, "memory.current"))
 s.Pids.Current, _ = readUint(filepath.Join(dir, "pids.current"))
 return s, nil
	}
	if dir, ok := m.paths["memory"]; ok {
 s.Memory.Usage, _ = readUint(filepath.Join(dir, "memory.usage_in_bytes"))
	}
	if dir, ok := m.paths["pids"]; ok {
 s.Pids.Current, _ = readUint(filepath.Join(dir, "pids.current"))
	}
	if dir, ok := m.paths["blkio"]; ok {
 if data, err := os.ReadFile(filepath.Join(dir, "blkio.throttle.io_service_bytes")); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				f := strings.Fields(line)
				if len(f) != 3 {
					continue
				}
				n, _ := strconv.ParseUint(f[2], 10, 64)
				switch f[1] {
				case "Read":
					s.Blkio.ReadBytes += n
				case "Write":
					s.Blkio.WriteBytes += n
				}
			}
		}
	}
	return s, nil
}

func writeFile(path, data string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
 return err
	}
	defer f.Close()
	_, err = f.WriteString(data)
	return err
}

func readUint(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
 return 0, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
 return 0, fmt.Errorf("empty file %s", path)
	}
	return strconv.ParseUint(strings.TrimSpace(scanner.Text()), 10, 64)
}
