package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// DefaultPollFrequency is how often LocalProcessLauncher polls its child for
// exit, per SPEC_FULL §4.1.1 ("a periodic callback (default 100 ms)").
const DefaultPollFrequency = 100 * time.Millisecond

// DefaultInterruptKillDelay is the default grace period between the soft
// interrupt and the hard kill in Stop's default interrupt_then_kill.
const DefaultInterruptKillDelay = 2 * time.Second

// LocalProcessLauncher spawns a child with captured stdout/stderr/stdin,
// working directory WorkDir, inheriting the parent's environment. This is
// the base concrete variant every other local-process-flavored launcher
// (MPIExecLauncher, SSHLauncher) composes by building a different argv and
// delegating Start to the embedded LocalProcessLauncher (SSHLauncher supplies
// its own Signal).
type LocalProcessLauncher struct {
	*BaseLauncher

	// Program is the executable to run.
	Program string
	// ProgramArgs are the arguments passed to Program.
	ProgramArgs []string
	// ExtraEnv holds additional "KEY=VALUE" entries appended to the child's
	// inherited environment, the mechanism by which the driver tells each
	// spawned engine its profile directory and integer id without resorting
	// to a command-line flag parser.
	ExtraEnv []string

	// PollFrequency overrides DefaultPollFrequency if nonzero.
	PollFrequency time.Duration
	// InterruptKillDelay overrides DefaultInterruptKillDelay if nonzero.
	InterruptKillDelay time.Duration

	handle     *ProcessHandle
	stopPoll   CancelFunc
	cancelKill CancelFunc
}

// NewLocalProcessLauncher constructs a LocalProcessLauncher in StateBefore.
func NewLocalProcessLauncher(id, workDir, program string, programArgs []string, loop *Loop, logger *slog.Logger) *LocalProcessLauncher {
	return &LocalProcessLauncher{
		BaseLauncher: NewBaseLauncher(id, workDir, loop, logger),
		Program:      program,
		ProgramArgs:  programArgs,
	}
}

// FindArgs returns the argv this launcher runs.
func (l *LocalProcessLauncher) FindArgs() []string {
	argv := make([]string, 0, 1+len(l.ProgramArgs))
	argv = append(argv, l.Program)
	argv = append(argv, l.ProgramArgs...)
	return argv
}

// Start spawns the child process, wires stdio forwarding, and begins the
// periodic poll callback that detects exit.
func (l *LocalProcessLauncher) Start() (StartData, error) {
	argv := l.FindArgs()
	handle, err := StartProcess(context.Background(), argv, l.WorkDir, l.ExtraEnv, l.Logger)
	if err != nil {
		return nil, fmt.Errorf("launcher: local process start: %w", err)
	}
	l.handle = handle

	freq := l.PollFrequency
	if freq == 0 {
		freq = DefaultPollFrequency
	}
	l.stopPoll = l.Loop.RunPeriodic(freq, l.poll)

	data := StartData{"pid": handle.Pid()}
	if err := l.NotifyStart(data); err != nil {
		return nil, err
	}
	return data, nil
}

// poll checks whether the child has exited; if so it unregisters itself and
// reports the stop.
func (l *LocalProcessLauncher) poll() {
	exited, code := l.handle.Poll()
	if !exited {
		return
	}
	if l.stopPoll != nil {
		l.stopPoll()
	}
	l.NotifyStop(StopData{"exit_code": code, "pid": l.handle.Pid()})
}

// Stop requests termination via the default interrupt_then_kill with
// InterruptKillDelay (or DefaultInterruptKillDelay).
func (l *LocalProcessLauncher) Stop() error {
	if l.CurrentState() != StateRunning {
		return nil
	}
	delay := l.InterruptKillDelay
	if delay == 0 {
		delay = DefaultInterruptKillDelay
	}
	l.cancelKill = interruptThenKill(l.Loop, l.handle, delay)
	return nil
}

// Signal sends sig if running. Windows cannot deliver arbitrary POSIX
// signals to a child; non-interrupt signals there are translated into a
// taskkill invocation against the process tree, matching the source's
// "substitute a tree-kill utility for all signals other than interrupt".
func (l *LocalProcessLauncher) Signal(sig Signal) error {
	if l.CurrentState() != StateRunning {
		return nil
	}
	if runtime.GOOS == "windows" {
		if sig == SignalInterrupt {
			return l.handle.Interrupt()
		}
		return treeKillWindows(l.handle.Pid())
	}
	switch sig {
	case SignalInterrupt:
		return l.handle.Interrupt()
	case SignalKill:
		return l.handle.Kill()
	case SignalTerminate:
		return sendTerminate(l.handle.cmd.Process)
	default:
		return l.handle.Interrupt()
	}
}
