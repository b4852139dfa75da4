package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromOCIResolvesRelativePathWithinBundle(t *testing.T) {
	bundle := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "hook.sh"), []byte("#!/bin/sh\n"), 0o755))

	list, err := FromOCI([]specs.Hook{{Path: "hook.sh", Args: []string{"hook.sh", "a"}}}, bundle)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, filepath.Join(bundle, "hook.sh"), list[0].Path)
}

func TestFromOCIKeepsAbsolutePath(t *testing.T) {
	list, err := FromOCI([]specs.Hook{{Path: "/bin/true"}}, "/bundle")
	require.NoError(t, err)
	assert.Equal(t, "/bin/true", list[0].Path)
}

func TestFromOCIClampsEscapingPath(t *testing.T) {
	bundle := t.TempDir()
	list, err := FromOCI([]specs.Hook{{Path: "../../etc/passwd"}}, bundle)
	// securejoin clamps escaping paths rather than erroring, so this must
	// resolve to somewhere under bundle, never outside it.
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, filepath.Join(bundle, "etc/passwd"), list[0].Path)
}

func TestRunHooksSuccess(t *testing.T) {
	list := HookList{{Path: "/bin/true"}}
	require.NoError(t, list.RunHooks(&specs.State{ID: "c1"}))
}

func TestRunHooksFailureStopsAtFirst(t *testing.T) {
	ran := t.TempDir()
	marker := filepath.Join(ran, "second-ran")
	list := HookList{
 {Path: "/bin/false"},
 {Path: "/bin/sh", Args: []string{"sh", "-c", "touch " + marker}},
	}
	err := list.RunHooks(&specs.State{ID: "c1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook #0")
	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "hook after a failure must not run")
}

func TestHookTimeout(t *testing.T) {
	h := Hook{Path: "/bin/sleep", Args: []string{"sleep", "5"}, Timeout: 50 * time.Millisecond}
	err := h.run(&specs.State{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestHooksRunByName(t *testing.T) {
	hooks := Hooks{Prestart: HookList{{Path: "/bin/true"}}}
	require.NoError(t, hooks.Run(Prestart, &specs.State{}))
	require.NoError(t, hooks.Run(Poststart, &specs.State{})) // unregistered name is a no-op
}
