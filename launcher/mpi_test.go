package launcher

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestMPIExecLauncherFindArgsOrdering(t *testing.T) {
	m := NewMPIExecLauncher("m0", "/tmp", []string{"mpiexec"}, []string{"--bind-to", "core"}, "engine", []string{"--id", "0"}, NewLoop(), nil)
	m.N = 4

	assert.DeepEqual(t, m.FindArgs(), []string{"mpiexec", "-n", "4", "--bind-to", "core", "engine", "--id", "0"})
}

func TestMPIExecLauncherFindArgsDefaultsNTo1(t *testing.T) {
	m := NewMPIExecLauncher("m0", "/tmp", []string{"mpiexec"}, nil, "engine", nil, NewLoop(), nil)

	assert.DeepEqual(t, m.FindArgs(), []string{"mpiexec", "-n", "1", "engine"})
}

func TestMPIExecLauncherStartNSetsCountBeforeSpawn(t *testing.T) {
	m := NewMPIExecLauncher("m0", t.TempDir(), []string{"sh", "-c", "true"}, nil, "unused", nil, NewLoop(), nil)
	_, err := m.StartN(2)
	assert.NilError(t, err)
	assert.Equal(t, m.N, 2)
	// Start() rewrites Program/ProgramArgs from FindArgs(), which is
	// mpi_cmd + ["-n", "2"] + program + program_args.
	assert.Equal(t, m.Program, "sh")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, waitErr := m.handle.Wait(ctx)
	assert.NilError(t, waitErr)
}
