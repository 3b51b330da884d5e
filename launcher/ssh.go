package launcher

import (
	"fmt"
	"log/slog"
)

// sshConnectionCloser is the escape sequence an OpenSSH client traps on its
// stdin to terminate the remote session: a newline (to flush any partial
// line the remote shell is reading), then "~." (tilde-dot), then a newline.
// Writing this to the local ssh client's stdin is how SSHLauncher.Signal
// terminates the remote workload without an OS signal, per SPEC_FULL
// §4.1.3.
const sshConnectionCloser = "\n~.\n"

// SSHLauncher extends LocalProcessLauncher: the local child it supervises is
// the system `ssh` client itself, with argv `ssh_cmd + ssh_args +
// [user@host] + program + program_args`. The actual remote command
// execution rides over that local ssh child process's stdio exactly as the
// reference source models it; golang.org/x/crypto/ssh is used instead
// wherever this package needs to originate an SSH session programmatically
// (SSHEngineSetLauncher's host probing, see set.go), but the per-engine
// child process itself stays a real local `ssh` invocation so that
// Signal's connection-closer trick — which depends on a real OpenSSH
// client's stdin handling — continues to work.
type SSHLauncher struct {
	*LocalProcessLauncher

	// SSHCmd is the ssh client binary and any fixed leading args, e.g.
	// []string{"ssh"}.
	SSHCmd []string
	// SSHArgs are extra arguments inserted before the user@host target.
	SSHArgs []string

	user     string
	hostname string
	// Location is kept in sync with User/Hostname: user@hostname, or just
	// hostname if user is empty.
	Location string
}

// NewSSHLauncher constructs an SSHLauncher in StateBefore.
func NewSSHLauncher(id, workDir string, sshCmd, sshArgs []string, user, hostname, program string, programArgs []string, loop *Loop, logger *slog.Logger) *SSHLauncher {
	s := &SSHLauncher{
		LocalProcessLauncher: NewLocalProcessLauncher(id, workDir, program, programArgs, loop, logger),
		SSHCmd:               sshCmd,
		SSHArgs:              sshArgs,
	}
	s.SetUser(user)
	s.SetHostname(hostname)
	return s
}

// SetUser updates the ssh user and recomputes Location.
func (s *SSHLauncher) SetUser(user string) {
	s.user = user
	s.syncLocation()
}

// SetHostname updates the ssh target host and recomputes Location.
func (s *SSHLauncher) SetHostname(hostname string) {
	s.hostname = hostname
	s.syncLocation()
}

func (s *SSHLauncher) syncLocation() {
	if s.user == "" {
		s.Location = s.hostname
		return
	}
	s.Location = fmt.Sprintf("%s@%s", s.user, s.hostname)
}

// FindArgs yields ssh_cmd + ssh_args + [location] + program + program_args.
func (s *SSHLauncher) FindArgs() []string {
	argv := make([]string, 0, len(s.SSHCmd)+len(s.SSHArgs)+1+1+len(s.ProgramArgs))
	argv = append(argv, s.SSHCmd...)
	argv = append(argv, s.SSHArgs...)
	argv = append(argv, s.Location)
	argv = append(argv, s.Program)
	argv = append(argv, s.ProgramArgs...)
	return argv
}

// Start spawns the ssh client using FindArgs's location-prefixed argv.
func (s *SSHLauncher) Start() (StartData, error) {
	full := s.FindArgs()
	// LocalProcessLauncher.Start spawns Program/ProgramArgs verbatim; splice
	// the full ssh argv into them (they keep those values afterwards).
	s.LocalProcessLauncher.Program = full[0]
	s.LocalProcessLauncher.ProgramArgs = full[1:]
	return s.LocalProcessLauncher.Start()
}

// Signal writes the SSH connection-closer escape sequence to the child's
// stdin instead of delivering an OS signal: the ssh client traps this
// sequence and closes the connection, which terminates the remote command.
// This is best-effort; a write failure here is not propagated (SPEC_FULL
// §7, "SSH signal failure — best-effort; no error is propagated").
func (s *SSHLauncher) Signal(sig Signal) error {
	if s.CurrentState() != StateRunning {
		return nil
	}
	stdin := s.handle.Stdin()
	if stdin == nil {
		return nil
	}
	_, _ = stdin.Write([]byte(sshConnectionCloser))
	return nil
}
