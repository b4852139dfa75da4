package libcontainer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

func TestNamespaceEnvNameMountDiffersFromProcfsName(t *testing.T) {
	assert.Equal(t, "MNT", namespaceEnvName(configs.NEWNS))
	assert.Equal(t, "NET", namespaceEnvName(configs.NEWNET))
	assert.Equal(t, "PID", namespaceEnvName(configs.NEWPID))
}

func TestParseStartTimeFromRealSelfStat(t *testing.T) {
	st := selfStartTime(t)
	assert.Greater(t, st, uint64(0))
}

func TestParseStartTimeRejectsMalformed(t *testing.T) {
	_, err := parseStartTime([]byte("not a stat line"))
	assert.Error(t, err)
}

func TestParseStartTimeHandlesParenInCommField(t *testing.T) {
	// comm can itself contain parens, e.g. "(my (weird) prog)"; parsing must
	// split on the *last* ')' to find the end of the second field.
	line := "123 (my (weird) prog) S 1 123 123 0 -1 0 0 0 0 0 0 0 0 0 20 0 1 0 555 0 0"
	st, err := parseStartTime([]byte(line))
	assert.NoError(t, err)
	assert.Equal(t, uint64(555), st)
}
