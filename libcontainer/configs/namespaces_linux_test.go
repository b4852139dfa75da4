package configs

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePlanSkipCreateJoin(t *testing.T) {
	dir := t.TempDir()
	pidNsPath := filepath.Join(dir, "pidns")
	require.NoError(t, os.WriteFile(pidNsPath, nil, 0o644))

	raw := Namespaces{
 {Type: NEWUTS},
 {Type: NEWPID, Path: pidNsPath},
	}

	plan, err := ResolvePlan(raw)
	require.NoError(t, err)
	defer plan.Close()

	assert.True(t, plan.HasAction(NEWUTS, ActionCreateNew))
	assert.True(t, plan.HasAction(NEWPID, ActionJoin))
	assert.True(t, plan.HasAction(NEWUSER, ActionSkip))
	assert.True(t, plan.HasAction(NEWNET, ActionSkip))
}

func TestResolvePlanOpensJoinFd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netns")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	plan, err := ResolvePlan(Namespaces{{Type: NEWNET, Path: path}})
	require.NoError(t, err)
	defer plan.Close()

	for _, e := range plan {
 if e.Kind == NEWNET {
 require.NotNil(t, e.JoinFd)
 }
	}
}

func TestResolvePlanMissingJoinPathErrors(t *testing.T) {
	_, err := ResolvePlan(Namespaces{{Type: NEWIPC, Path: "/does/not/exist"}})
	require.Error(t, err)
}

func TestPlanCloneFlagsOnlyCreateNew(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "utsns")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	plan, err := ResolvePlan(Namespaces{
 {Type: NEWUTS, Path: path}, // Join: contributes no flag
 {Type: NEWIPC}, // CreateNew: contributes CLONE_NEWIPC
	})
	require.NoError(t, err)
	defer plan.Close()

	assert.Equal(t, uintptr(unix.CLONE_NEWIPC), plan.CloneFlags())
}

func TestPidNamespaceDisposition(t *testing.T) {
	none, err := ResolvePlan(Namespaces{})
	require.NoError(t, err)
	assert.False(t, none.PidNamespaceDisposition().Enabled)

	created, err := ResolvePlan(Namespaces{{Type: NEWPID}})
	require.NoError(t, err)
	disp := created.PidNamespaceDisposition()
	assert.True(t, disp.Enabled)
	assert.Nil(t, disp.JoinFd)

	dir := t.TempDir()
	path := filepath.Join(dir, "pidns")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	joined, err := ResolvePlan(Namespaces{{Type: NEWPID, Path: path}})
	require.NoError(t, err)
	defer joined.Close()
	disp = joined.PidNamespaceDisposition()
	assert.True(t, disp.Enabled)
	require.NotNil(t, disp.JoinFd)
}

func TestResolvePlanForTargetRewritesEmptyPaths(t *testing.T) {
	plan, err := ResolvePlanForTarget(Namespaces{{Type: NEWUTS}}, os.Getpid())
	require.NoError(t, err)
	defer plan.Close()
	for _, e := range plan {
 if e.Kind == NEWUTS {
 assert.Equal(t, ActionJoin, e.Action)
 assert.Contains(t, e.Path, "ns/uts")
 }
	}
}

func TestNamespacesFromOCIRejectsUnknownKind(t *testing.T) {
	_, err := NamespacesFromOCI([]specs.LinuxNamespace{{Type: "bogus"}})
	require.Error(t, err)
}

func TestNamespacesFromOCIConvertsKnownKinds(t *testing.T) {
	out, err := NamespacesFromOCI([]specs.LinuxNamespace{
 {Type: specs.PIDNamespace, Path: "/proc/1/ns/pid"},
 {Type: specs.NetworkNamespace},
	})
	require.NoError(t, err)
	assert.True(t, out.Contains(NEWPID))
	assert.Equal(t, "/proc/1/ns/pid", out.PathOf(NEWPID))
	assert.True(t, out.Contains(NEWNET))
	assert.Equal(t, "", out.PathOf(NEWNET))
}

func TestNsNameAndOCIKindDiffer(t *testing.T) {
	assert.Equal(t, "mnt", NsName(NEWNS))
	assert.Equal(t, "mount", OCIKind(NEWNS))
	assert.Equal(t, "net", NsName(NEWNET))
	assert.Equal(t, "network", OCIKind(NEWNET))
}

func TestNamespaceActionString(t *testing.T) {
	assert.Equal(t, "CreateNew", ActionCreateNew.String())
	assert.Equal(t, "Join", ActionJoin.String())
	assert.Equal(t, "Skip", ActionSkip.String())
}
