package libcontainer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(errContainerNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", errContainerNotFound)))
	assert.False(t, IsNotFound(errProcessNotStarted))
	assert.False(t, IsNotFound(fmt.Errorf("plain error")))
	assert.False(t, IsNotFound(nil))
}

func TestRuntimeErrorMessageShapes(t *testing.T) {
	plain := newError(CgroupError, "destroying cgroup", nil)
	assert.Equal(t, "cgroup error: destroying cgroup", plain.Error())

	wrapped := newError(KernelError, "setns failed", assert.AnError)
	assert.Contains(t, wrapped.Error(), "kernel error: setns failed")
	assert.Contains(t, wrapped.Error(), assert.AnError.Error())

	stepped := newStepError(ChannelError, 4, "sending cgroup manager", assert.AnError)
	assert.Contains(t, stepped.Error(), "at step 4")
}

func TestRuntimeErrorUnwrap(t *testing.T) {
	err := newError(HookError, "prestart hook failed", assert.AnError)
	require.ErrorIs(t, err, assert.AnError)
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "not found", NotFoundError.String())
	assert.Equal(t, "state error", StateError.String())
	assert.Equal(t, "error", errorKind(99).String())
}
