package cliapp

import (
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWorkersFlagWins(t *testing.T) {
	t.Setenv("LJD_WORKERS", "9")
	got, err := resolveWorkers(3)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestResolveWorkersFallsBackToEnv(t *testing.T) {
	t.Setenv("LJD_WORKERS", "5")
	got, err := resolveWorkers(0)
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

func TestResolveWorkersFallsBackToNumCPU(t *testing.T) {
	require.NoError(t, os.Unsetenv("LJD_WORKERS"))
	got, err := resolveWorkers(0)
	require.NoError(t, err)
	assert.Equal(t, runtime.NumCPU(), got)
}
