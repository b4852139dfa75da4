package commands

import (
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

func memPtr(v int64) *int64 { return &v }

func TestConfigFromSpecMinimal(t *testing.T) {
	spec := &specs.Spec{
 Root: &specs.Root{Path: "rootfs"},
 Process: &specs.Process{Args: []string{"sh"}},
	}
	cfg, err := configFromSpec(spec, "/bundle", "c1")
	require.NoError(t, err)
	assert.Equal(t, "/bundle/rootfs", cfg.Rootfs)
}

func TestConfigFromSpecAbsoluteRootfsUnchanged(t *testing.T) {
	spec := &specs.Spec{
 Root: &specs.Root{Path: "/var/lib/runcell/c1/rootfs"},
 Process: &specs.Process{Args: []string{"sh"}},
	}
	cfg, err := configFromSpec(spec, "/bundle", "c1")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/runcell/c1/rootfs", cfg.Rootfs)
}

func TestConfigFromSpecRequiresRoot(t *testing.T) {
	spec := &specs.Spec{Process: &specs.Process{Args: []string{"sh"}}}
	_, err := configFromSpec(spec, "/bundle", "c1")
	require.Error(t, err)
}

func TestConfigFromSpecTranslatesNamespacesAndCgroups(t *testing.T) {
	spec := &specs.Spec{
 Root: &specs.Root{Path: "rootfs"},
 Process: &specs.Process{Args: []string{"sh"}},
 Linux: &specs.Linux{
 Namespaces: []specs.LinuxNamespace{
 {Type: specs.PIDNamespace},
 {Type: specs.NetworkNamespace, Path: "/proc/1/ns/net"},
 },
 UIDMappings: []specs.LinuxIDMapping{{ContainerID: 0, HostID: 100000, Size: 65536}},
 CgroupsPath: "/runcell/c1",
 Resources: &specs.LinuxResources{
 Memory: &specs.LinuxMemory{Limit: memPtr(1 << 20)},
 },
 },
	}
	cfg, err := configFromSpec(spec, "/bundle", "c1")
	require.NoError(t, err)
	assert.True(t, cfg.Namespaces.Contains(configs.NEWPID))
	assert.Equal(t, "/proc/1/ns/net", cfg.Namespaces.PathOf(configs.NEWNET))
	require.Len(t, cfg.UIDMappings, 1)
	assert.Equal(t, int64(100000), cfg.UIDMappings[0].HostID)
	require.NotNil(t, cfg.Cgroups)
	assert.Equal(t, "/runcell/c1", cfg.Cgroups.Path)
	require.NotNil(t, cfg.Cgroups.Resources)
	assert.Equal(t, int64(1<<20), cfg.Cgroups.Resources.Memory)
}

func TestResourcesFromOCIHandlesNilSubsections(t *testing.T) {
	r := resourcesFromOCI(&specs.LinuxResources{})
	assert.Equal(t, int64(0), r.Memory)
	assert.Equal(t, uint64(0), r.CpuShares)
}

func TestProcessFromSpecTTYSuppressesStdio(t *testing.T) {
	spec := &specs.Spec{Process: &specs.Process{Args: []string{"sh"}}}
	p := processFromSpec(spec, true, true, false)
	assert.Nil(t, p.Stdout)
	assert.Nil(t, p.Stderr)
	assert.True(t, p.Init)
}

func TestProcessFromSpecNonTTYWiresStdio(t *testing.T) {
	spec := &specs.Spec{Process: &specs.Process{Args: []string{"sh"}}}
	p := processFromSpec(spec, false, false, true)
	assert.NotNil(t, p.Stdout)
	assert.NotNil(t, p.Stderr)
	assert.NotNil(t, p.Stdin)
	assert.False(t, p.Init)
}
