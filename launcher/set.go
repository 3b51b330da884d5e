package launcher

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// LauncherSet is a fan-out aggregator: it composes N child launchers into
// one lifecycle, owning a mapping index->Launcher and an accumulator
// stop_data: mapping index->exit record, per SPEC_FULL §4.1.6. It reports
// stopped exactly when the owned mapping becomes empty after the last child
// reports stopped.
type LauncherSet struct {
	*BaseLauncher

	mu       sync.Mutex
	children map[string]Launcher
	stopData map[string]StopData
}

// NewLauncherSet constructs an empty LauncherSet. Children are added with
// AddChild before Start.
func NewLauncherSet(id, workDir string, loop *Loop, logger *slog.Logger) *LauncherSet {
	return &LauncherSet{
		BaseLauncher: NewBaseLauncher(id, workDir, loop, logger),
		children:     make(map[string]Launcher),
		stopData:     make(map[string]StopData),
	}
}

// AddChild registers a child launcher under index and wires its OnStop to
// LauncherSet's own completion bookkeeping. Must be called before Start.
func (s *LauncherSet) AddChild(index string, child Launcher) {
	s.mu.Lock()
	s.children[index] = child
	s.mu.Unlock()

	child.OnStop(func(data StopData) {
		s.onChildStop(index, data)
	})
}

func (s *LauncherSet) onChildStop(index string, data StopData) {
	s.mu.Lock()
	delete(s.children, index)
	s.stopData[index] = data
	empty := len(s.children) == 0
	snapshot := make(StopData, len(s.stopData))
	for k, v := range s.stopData {
		snapshot[fmt.Sprintf("child:%s", k)] = v
	}
	s.mu.Unlock()

	if empty {
		s.NotifyStop(snapshot)
	}
}

// Start starts every registered child. The set itself transitions to
// StateRunning once all children have started; every child is attempted
// even after one fails, and the failures are returned together as one
// error. On failure the set stays in StateBefore and the children that did
// start are left running.
func (s *LauncherSet) Start() (StartData, error) {
	s.mu.Lock()
	indices := make([]string, 0, len(s.children))
	for idx := range s.children {
		indices = append(indices, idx)
	}
	sort.Strings(indices)
	s.mu.Unlock()

	started := StartData{}
	var errs []string
	for _, idx := range indices {
		s.mu.Lock()
		child := s.children[idx]
		s.mu.Unlock()
		data, err := child.Start()
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", idx, err))
			continue
		}
		started[idx] = data
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("launcher: launcher set start failures: %s", strings.Join(errs, "; "))
	}
	if err := s.NotifyStart(started); err != nil {
		return nil, err
	}
	return started, nil
}

// FindArgs has no single meaning for a fan-out aggregator; it returns the
// concatenation of every child's argv for introspection/testing.
func (s *LauncherSet) FindArgs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []string
	indices := make([]string, 0, len(s.children))
	for idx := range s.children {
		indices = append(indices, idx)
	}
	sort.Strings(indices)
	for _, idx := range indices {
		all = append(all, s.children[idx].FindArgs()...)
	}
	return all
}

// Stop broadcasts Stop to every currently-tracked child.
func (s *LauncherSet) Stop() error {
	return s.broadcast(func(c Launcher) error { return c.Stop() })
}

// Signal broadcasts sig to every currently-tracked child.
func (s *LauncherSet) Signal(sig Signal) error {
	return s.broadcast(func(c Launcher) error { return c.Signal(sig) })
}

func (s *LauncherSet) broadcast(fn func(Launcher) error) error {
	s.mu.Lock()
	children := make([]Launcher, 0, len(s.children))
	for _, c := range s.children {
		children = append(children, c)
	}
	s.mu.Unlock()

	var errs []string
	for _, c := range children {
		if err := fn(c); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("launcher: broadcast errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SSHEngineHostSpec is one entry of the caller-supplied `engines` mapping:
// host -> n, or host -> (n, args_override).
type SSHEngineHostSpec struct {
	Host         string
	N            int
	ArgsOverride []string
}

// SSHEngineSetLauncherConfig groups the fixed parameters every per-host
// child SSHLauncher is built from.
type SSHEngineSetLauncherConfig struct {
	SSHCmd      []string
	SSHArgs     []string
	Program     string
	ProgramArgs []string
	ProfileDir  string
	WorkDir     string

	// ProbeConfig, when non-nil, causes NewSSHEngineSetLauncher to verify
	// each host is reachable over SSH before any child launcher is
	// constructed (see ProbeSSHHost). Optional: tests and local-only runs
	// typically leave this nil.
	ProbeConfig  *ssh.ClientConfig
	ProbeTimeout time.Duration
}

// NewSSHEngineSetLauncher builds a LauncherSet whose children are
// SSHLaunchers, one per requested instance across the given hosts, per
// SPEC_FULL §4.1.6's SSHEngineSetLauncher special case: host strings may
// carry a "user@" prefix which is split off; total engines launched equals
// the sum of n over hosts; each child index is host+strconv.Itoa(i).
func NewSSHEngineSetLauncher(id string, specs []SSHEngineHostSpec, cfg SSHEngineSetLauncherConfig, loop *Loop, logger *slog.Logger) (*LauncherSet, error) {
	set := NewLauncherSet(id, cfg.WorkDir, loop, logger)

	for _, spec := range specs {
		user, hostname := splitUserHost(spec.Host)

		if cfg.ProbeConfig != nil {
			timeout := cfg.ProbeTimeout
			if timeout == 0 {
				timeout = 5 * time.Second
			}
			if err := ProbeSSHHost(hostname, 22, cfg.ProbeConfig, timeout); err != nil {
				return nil, fmt.Errorf("launcher: ssh engine set probe failed for %s: %w", spec.Host, err)
			}
		}

		programArgs := cfg.ProgramArgs
		if spec.ArgsOverride != nil {
			programArgs = spec.ArgsOverride
		}

		n := spec.N
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			index := hostname + strconv.Itoa(i)
			childID := fmt.Sprintf("%s/%s", id, index)
			child := NewSSHLauncher(childID, cfg.WorkDir, cfg.SSHCmd, cfg.SSHArgs, user, hostname, cfg.Program, programArgs, loop, logger)
			set.AddChild(index, child)
		}
	}

	return set, nil
}

// splitUserHost splits "user@host" into ("user", "host"); a host with no
// "@" yields ("", host).
func splitUserHost(hostSpec string) (user, host string) {
	if idx := strings.IndexByte(hostSpec, '@'); idx >= 0 {
		return hostSpec[:idx], hostSpec[idx+1:]
	}
	return "", hostSpec
}
