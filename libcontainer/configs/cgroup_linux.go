package configs

// CgroupDriver selects the backend that applies cgroup membership and
// resource limits for a container. Only Cgroupfs is actually implemented by
// this core; Systemd is recognized so it can be rejected with a clear
// configuration error.
type CgroupDriver string

const (
	Cgroupfs CgroupDriver = "cgroupfs"
	Systemd CgroupDriver = "systemd"
)

// Cgroup groups the cgroup driver selection, hierarchy path, and resource
// limits that make up one container's cgroup configuration.
type Cgroup struct {
	// Name is usually the container ID; Parent is the cgroup hierarchy the
	// container's cgroup is created under (e.g. "/runcell").
	Name string `json:"name,omitempty"`
	Parent string `json:"parent,omitempty"`

	// Path, if set, is used verbatim instead of deriving one from
	// Name/Parent — this is how a caller joins an externally-managed cgroup.
	Path string `json:"path,omitempty"`

	Driver CgroupDriver `json:"driver"`

	Resources *Resources `json:"resources,omitempty"`

	// Rootless, when set, tolerates cgroup apply/set errors that are a
	// consequence of lacking privilege rather than treating them as fatal.
	Rootless bool `json:"rootless,omitempty"`
}

// Resources is the subset of OCI resource limits this core plumbs through to
// the cgroup manager. It intentionally omits device cgroup rules and
// network classid/priority, which belong to the out-of-scope mount/device
// layer.
type Resources struct {
	// Memory limit in bytes. 0 means unset.
	Memory int64 `json:"memory,omitempty"`
	// MemorySwap limit in bytes, -1 for unlimited.
	MemorySwap int64 `json:"memory_swap,omitempty"`

	// CPU shares, quota (microseconds) and period (microseconds).
	CpuShares uint64 `json:"cpu_shares,omitempty"`
	CpuQuota int64 `json:"cpu_quota,omitempty"`
	CpuPeriod uint64 `json:"cpu_period,omitempty"`
	CpusetCpus string `json:"cpuset_cpus,omitempty"`
	CpusetMems string `json:"cpuset_mems,omitempty"`

	// PidsLimit caps the number of tasks in the cgroup; 0 means unset, -1
	// means unlimited.
	PidsLimit int64 `json:"pids_limit,omitempty"`

	// BlkioWeight is the relative block IO weight, 10-1000.
	BlkioWeight uint16 `json:"blkio_weight,omitempty"`
}
