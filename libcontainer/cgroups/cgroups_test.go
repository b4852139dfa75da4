package cgroups

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemory(t *testing.T) {
	got, err := ParseMemory("512m")
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024*1024), got)

	got, err = ParseMemory("2GiB")
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024*1024), got)

	_, err = ParseMemory("not-a-size")
	require.Error(t, err)
}

func TestFormatStats(t *testing.T) {
	s := &Stats{
		Memory: MemoryStats{Usage: 1024 * 1024},
		CPU: CPUStats{UsageUsec: 5000},
		Pids: PidsStats{Current: 3, Limit: 0},
	}
	line := FormatStats(s)
	assert.Contains(t, line, "pids=3/max")
	assert.Contains(t, line, "cpu=5000us")

	s.Pids.Limit = 10
	assert.Contains(t, FormatStats(s), "pids=3/10")
}
