package launcher

import (
	"log/slog"
	"strconv"
)

// MPIExecLauncher extends LocalProcessLauncher: its argv is the
// configured MPI runner command plus "-n <N>" plus any extra mpi args, then
// the program and its args, per SPEC_FULL §4.1.2.
type MPIExecLauncher struct {
	*LocalProcessLauncher

	// MPICmd is the mpi runner binary and any fixed leading args, e.g.
	// []string{"mpiexec"}.
	MPICmd []string
	// MPIArgs are extra arguments inserted between "-n <N>" and the program.
	MPIArgs []string
	// N is the instance count; set by StartN before Start is called.
	N int
}

// NewMPIExecLauncher constructs an MPIExecLauncher in StateBefore.
func NewMPIExecLauncher(id, workDir string, mpiCmd, mpiArgs []string, program string, programArgs []string, loop *Loop, logger *slog.Logger) *MPIExecLauncher {
	m := &MPIExecLauncher{
		LocalProcessLauncher: NewLocalProcessLauncher(id, workDir, program, programArgs, loop, logger),
		MPICmd:               mpiCmd,
		MPIArgs:              mpiArgs,
		N:                    1,
	}
	return m
}

// FindArgs yields mpi_cmd + ["-n", str(n)] + mpi_args + program + program_args.
func (m *MPIExecLauncher) FindArgs() []string {
	n := m.N
	if n <= 0 {
		n = 1
	}
	argv := make([]string, 0, len(m.MPICmd)+2+len(m.MPIArgs)+1+len(m.ProgramArgs))
	argv = append(argv, m.MPICmd...)
	argv = append(argv, "-n", strconv.Itoa(n))
	argv = append(argv, m.MPIArgs...)
	argv = append(argv, m.Program)
	argv = append(argv, m.ProgramArgs...)
	return argv
}

// StartN sets the instance count then starts, matching the source's
// start(n) which "sets n then delegates". The controller variant of this
// launcher always calls StartN(1); the engine-set variant honors the
// caller's n.
func (m *MPIExecLauncher) StartN(n int) (StartData, error) {
	m.N = n
	return m.Start()
}

// Start spawns the child using FindArgs() of this type rather than the
// embedded LocalProcessLauncher's plain program+args.
// LocalProcessLauncher.Start always calls its own FindArgs, so
// MPIExecLauncher overrides Start to overwrite the embedded Program and
// ProgramArgs with the full mpi argv (they keep those values afterwards)
// while reusing the poll/notify machinery.
func (m *MPIExecLauncher) Start() (StartData, error) {
	m.LocalProcessLauncher.Program = m.FindArgs()[0]
	m.LocalProcessLauncher.ProgramArgs = m.FindArgs()[1:]
	return m.LocalProcessLauncher.Start()
}
