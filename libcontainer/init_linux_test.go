package libcontainer

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvFdUnsetReturnsNegativeOne(t *testing.T) {
	assert.Equal(t, -1, envFd("RUNCELL_TEST_UNSET_FD"))
}

func TestEnvFdParsesDecimal(t *testing.T) {
	t.Setenv("RUNCELL_TEST_FD", "7")
	assert.Equal(t, 7, envFd("RUNCELL_TEST_FD"))
}

func TestEnvFdRejectsNonNumeric(t *testing.T) {
	t.Setenv("RUNCELL_TEST_FD", "not-a-number")
	assert.Equal(t, -1, envFd("RUNCELL_TEST_FD"))
}

func TestFilterEnvDropsNamedVars(t *testing.T) {
	env := []string{"FOO=1", "DROP_ME=2", "BAR=3"}
	out := filterEnv(env, "DROP_ME")
	assert.Equal(t, []string{"FOO=1", "BAR=3"}, out)
}

func TestFilterEnvNoMatchLeavesUnchanged(t *testing.T) {
	env := []string{"FOO=1", "BAR=2"}
	out := filterEnv(env, "NOT_PRESENT")
	assert.Equal(t, env, out)
}
