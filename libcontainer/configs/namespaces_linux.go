package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// NamespaceType identifies one of the seven OCI-visible namespace kinds.
// The mount namespace is spelled "mount" in the OCI spec ("mnt" under
// /proc/<pid>/ns) and corresponds to the CLONE_NEWNS kernel flag.
type NamespaceType string

const (
	NEWUSER NamespaceType = "user"
	NEWIPC NamespaceType = "ipc"
	NEWUTS NamespaceType = "uts"
	NEWNET NamespaceType = "network"
	NEWPID NamespaceType = "pid"
	NEWNS NamespaceType = "mount"
	NEWCGROUP NamespaceType = "cgroup"
)

// ociKind is the literal string used in the OCI config.json linux.namespaces
// array; every entry equals the NamespaceType value itself, including
// NEWNS's "mount".
var ociKind = map[NamespaceType]string{
	NEWUSER: "user",
	NEWIPC: "ipc",
	NEWUTS: "uts",
	NEWNET: "network",
	NEWPID: "pid",
	NEWNS: "mount",
	NEWCGROUP: "cgroup",
}

// procfsName is the bit-exact namespace kind -> procfs leaf name mapping
// from : "ipc->ipc, user->user, pid->pid, net->net, mnt->mnt,
// uts->uts, cgroup->cgroup". Note this differs from the OCI name for two
// kinds (network->net, mount->mnt).
var procfsName = map[NamespaceType]string{
	NEWUSER: "user",
	NEWIPC: "ipc",
	NEWUTS: "uts",
	NEWNET: "net",
	NEWPID: "pid",
	NEWNS: "mnt",
	NEWCGROUP: "cgroup",
}

var namespaceTypes = []NamespaceType{NEWUSER, NEWIPC, NEWUTS, NEWNET, NEWPID, NEWNS, NEWCGROUP}

// NamespaceTypes returns every namespace kind this core knows about, in a
// stable order.
func NamespaceTypes() []NamespaceType {
	out := make([]NamespaceType, len(namespaceTypes))
	copy(out, namespaceTypes)
	return out
}

var cloneFlag = map[NamespaceType]uintptr{
	NEWUSER: unix.CLONE_NEWUSER,
	NEWIPC: unix.CLONE_NEWIPC,
	NEWUTS: unix.CLONE_NEWUTS,
	NEWNET: unix.CLONE_NEWNET,
	NEWPID: unix.CLONE_NEWPID,
	NEWNS: unix.CLONE_NEWNS,
	NEWCGROUP: unix.CLONE_NEWCGROUP,
}

// Namespace is one entry of the raw OCI linux.namespaces array: a kind and
// an optional join path. An empty Path means "create a new one of this
// kind".
type Namespace struct {
	Type NamespaceType `json:"type"`
	Path string `json:"path,omitempty"`
}

// Namespaces is the raw, unresolved list of namespace entries taken directly
// from the OCI spec.
type Namespaces []Namespace

// Contains reports whether t is present in the list, regardless of whether
// it creates or joins.
func (n Namespaces) Contains(t NamespaceType) bool {
	for _, ns := range n {
 if ns.Type == t {
 return true
 }
	}
	return false
}

// PathOf returns the join path configured for t, or "" if t is absent or
// requests a new namespace.
func (n Namespaces) PathOf(t NamespaceType) string {
	for _, ns := range n {
 if ns.Type == t {
 return ns.Path
 }
	}
	return ""
}

// CloneFlags computes the clone(2)/unshare(2) flags for every namespace in
// the list that has no join Path (i.e. every CreateNew entry).
func (n Namespaces) CloneFlags() uintptr {
	var flags uintptr
	for _, ns := range n {
 if ns.Path != "" {
 continue
 }
 flags |= cloneFlag[ns.Type]
	}
	return flags
}

// NsName returns the procfs leaf name for t.
func NsName(t NamespaceType) string {
	return procfsName[t]
}

// GetPath returns the /proc/<pid>/ns/<kind> path for this namespace kind and
// the given pid.
func (ns Namespace) GetPath(pid int) string {
	return filepath.Join("/proc", strconv.Itoa(pid), "ns", NsName(ns.Type))
}

// IsNamespaceSupported reports whether the kernel this process runs on is
// expected to support namespace kind t. All seven kinds are assumed
// supported on a modern kernel; callers that need a stricter runtime probe
// should stat /proc/self/ns/<kind>.
func IsNamespaceSupported(t NamespaceType) bool {
	_, ok := procfsName[t]
	return ok
}

// NamespaceAction classifies how a single namespace plan entry should be
// handled,.
type NamespaceAction int

const (
	ActionSkip NamespaceAction = iota
	ActionCreateNew
	ActionJoin
)

func (a NamespaceAction) String() string {
	switch a {
	case ActionCreateNew:
 return "CreateNew"
	case ActionJoin:
 return "Join"
	default:
 return "Skip"
	}
}

// PlanEntry is one resolved entry of a namespace plan: a kind plus an
// action, with the join path and an owned read-only file descriptor
// attached to every Join entry.
type PlanEntry struct {
	Kind NamespaceType
	Action NamespaceAction
	Path string

	// JoinFd is set for every Action==ActionJoin entry: the resolver opens
	// the namespace file read-only and the caller owns the descriptor until
	// Plan.Close. Only the pid entry's descriptor is handed to the child
	// (see PidNamespaceDisposition) (component H).
	JoinFd *os.File
}

// Plan is the ordered namespace plan derived from the OCI linux.namespaces
// array.
type Plan []PlanEntry

// ResolvePlan classifies every namespace kind runcell understands against
// the raw OCI namespace list: entries with an empty/absent path become
// CreateNew, entries with a path become Join, and kinds absent from the
// array become Skip (component B).
func ResolvePlan(raw Namespaces) (Plan, error) {
	plan := make(Plan, 0, len(namespaceTypes))
	for _, kind := range namespaceTypes {
 if !raw.Contains(kind) {
 plan = append(plan, PlanEntry{Kind: kind, Action: ActionSkip})
 continue
 }
 path := raw.PathOf(kind)
 if path == "" {
 plan = append(plan, PlanEntry{Kind: kind, Action: ActionCreateNew})
 continue
 }
 entry := PlanEntry{Kind: kind, Action: ActionJoin, Path: path}
 // Every Join entry gets an opened read-only descriptor, not just
 // pid: the child setns-es into each of them early in its own
 // execution. The pid namespace is singled out by
 // PidNamespaceDisposition below because, unlike the others, it must
 // be consumed before the coordinator can treat the child's PID as
 // meaningful (component H).
 fd, err := os.Open(path)
 if err != nil {
 return nil, fmt.Errorf("opening %s namespace %s: %w", kind, path, err)
 }
 entry.JoinFd = fd
 plan = append(plan, entry)
	}
	return plan, nil
}

// ResolvePlanForTarget implements the "sandbox scenario" of :
// every namespace entry whose path is unset is rewritten to
// /proc/<pid>/ns/<kind> before the normal resolution, so the new container
// shares the namespaces of an already-running process.
func ResolvePlanForTarget(raw Namespaces, pid int) (Plan, error) {
	rewritten := make(Namespaces, len(raw))
	copy(rewritten, raw)
	for i, ns := range rewritten {
 if ns.Path == "" {
 rewritten[i].Path = filepath.Join("/proc", strconv.Itoa(pid), "ns", NsName(ns.Type))
 }
	}
	return ResolvePlan(rewritten)
}

// HasAction reports whether the plan contains an entry of the given kind and
// action.
func (p Plan) HasAction(kind NamespaceType, action NamespaceAction) bool {
	for _, e := range p {
 if e.Kind == kind && e.Action == action {
 return true
 }
	}
	return false
}

// UserNamespaceCreate reports whether the plan creates a new user namespace
//.
func (p Plan) UserNamespaceCreate() bool {
	return p.HasAction(NEWUSER, ActionCreateNew)
}

// PidDisposition is the answer to second query: "what is the
// PID-namespace disposition?".
type PidDisposition struct {
	Enabled bool
	JoinFd *os.File
}

// PidNamespaceDisposition implements component H: it looks for the pid
// namespace entry and reports whether a new one is being created or an
// existing one joined, handing back the fd the resolver already opened for
// a join. The coordinator owns that descriptor from here on.
func (p Plan) PidNamespaceDisposition() PidDisposition {
	for _, e := range p {
 if e.Kind != NEWPID {
 continue
 }
 switch e.Action {
 case ActionCreateNew:
 return PidDisposition{Enabled: true}
 case ActionJoin:
 return PidDisposition{Enabled: true, JoinFd: e.JoinFd}
 default:
 return PidDisposition{Enabled: false}
 }
	}
	return PidDisposition{Enabled: false}
}

// CloneFlags computes the clone(2)/unshare(2) flags for every CreateNew
// entry in a resolved plan. Join entries contribute nothing here: those
// namespaces are entered by setns after the child has started, not by a
// clone(2) flag.
func (p Plan) CloneFlags() uintptr {
	var flags uintptr
	for _, e := range p {
 if e.Action == ActionCreateNew {
 flags |= cloneFlag[e.Kind]
 }
	}
	return flags
}

// Close releases any namespace file descriptors owned by the plan that were
// never consumed by the child — the coordinator calls this on every error
// path.
func (p Plan) Close() {
	for _, e := range p {
 if e.JoinFd != nil {
 e.JoinFd.Close()
 }
	}
}

var ociToType = map[specs.LinuxNamespaceType]NamespaceType{
	specs.UserNamespace: NEWUSER,
	specs.IPCNamespace: NEWIPC,
	specs.UTSNamespace: NEWUTS,
	specs.NetworkNamespace: NEWNET,
	specs.PIDNamespace: NEWPID,
	specs.MountNamespace: NEWNS,
	specs.CgroupNamespace: NEWCGROUP,
}

// NamespacesFromOCI converts the OCI linux.namespaces array into our
// Namespaces type, rejecting kinds this core does not recognize
// (configuration error).
func NamespacesFromOCI(in []specs.LinuxNamespace) (Namespaces, error) {
	out := make(Namespaces, 0, len(in))
	for _, ns := range in {
 t, ok := ociToType[ns.Type]
 if !ok {
 return nil, fmt.Errorf("unknown namespace kind %q", ns.Type)
 }
 out = append(out, Namespace{Type: t, Path: ns.Path})
	}
	return out, nil
}

// OCIKind returns the OCI config.json spelling for t (e.g. NEWNS -> "mount"),
// as opposed to NsName which returns the procfs leaf name ("mnt").
func OCIKind(t NamespaceType) string {
	return ociKind[t]
}
