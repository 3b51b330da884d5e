package launcher

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// ProbeSSHHost dials host over TCP and completes the SSH transport/auth
// handshake using config, then closes the connection immediately. It does
// not run any command. SSHEngineSetLauncher uses this before fanning out a
// batch of per-host child launchers, so a single unreachable host in a
// large `engines` mapping fails fast with a clear error instead of only
// being discovered when its local ssh child process exits nonzero minutes
// later.
func ProbeSSHHost(host string, port int, config *ssh.ClientConfig, timeout time.Duration) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("launcher: dial ssh host %s: %w", addr, err)
	}
	defer conn.Close()

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return fmt.Errorf("launcher: ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(clientConn, chans, reqs)
	defer client.Close()
	return nil
}
