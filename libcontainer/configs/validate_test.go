package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiresRootfs(t *testing.T) {
	err := (&Config{}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rootfs is required")
}

func TestValidateAcceptsCgroupfsDriver(t *testing.T) {
	cfg := &Config{Rootfs: "/bundle/rootfs", Cgroups: &Cgroup{Driver: Cgroupfs}}
	assert.NoError(t, cfg.Validate())
}

func TestValidateDefaultsEmptyDriverToCgroupfs(t *testing.T) {
	cfg := &Config{Rootfs: "/bundle/rootfs", Cgroups: &Cgroup{}}
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsSystemdDriver(t *testing.T) {
	cfg := &Config{Rootfs: "/bundle/rootfs", Cgroups: &Cgroup{Driver: Systemd}}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{Rootfs: "/bundle/rootfs", Cgroups: &Cgroup{Driver: CgroupDriver("unknown")}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown cgroup driver")
}

func TestValidateRejectsRelativeCgroupPath(t *testing.T) {
	cfg := &Config{Rootfs: "/bundle/rootfs", Cgroups: &Cgroup{Driver: Cgroupfs, Path: "relative/path"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be absolute")
}
