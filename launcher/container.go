package launcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	imagepkg "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ContainerLauncher is the sixth concrete Launcher variant added in
// SPEC_FULL §4.1.7: it runs the engine workload inside a Docker container
// rather than as a bare local process. It implements the abstract contract
// directly rather than embedding LocalProcessLauncher, since its
// ProcessHandle equivalent is a remote container, not a local pid; the
// create/start/wait/logs/stop/remove lifecycle below mirrors the reference
// control plane's ephemeral-build-container runner line for line, adapted
// from a one-shot blocking helper into a long-running supervised launcher.
type ContainerLauncher struct {
	*BaseLauncher

	sdk    *dockerclient.Client
	logger *slog.Logger

	Image         string
	Cmd           []string
	ContainerName string
	BindMounts    []mount.Mount
	Env           []string

	// Platform pins the image layer pulled and the container created to a
	// specific "os/arch" pair (e.g. "linux/amd64"), for clusters mixing
	// architectures across engine hosts. Empty leaves it nil, letting the
	// daemon pick the platform matching its own host.
	Platform string

	// StopGrace bounds how long ContainerStop waits before forcing kill.
	StopGrace time.Duration

	containerID string
	cancelWait  context.CancelFunc
}

// NewContainerLauncher constructs a ContainerLauncher in StateBefore.
func NewContainerLauncher(id, workDir, containerName, image string, cmd, env []string, mounts []mount.Mount, sdk *dockerclient.Client, loop *Loop, logger *slog.Logger) *ContainerLauncher {
	return &ContainerLauncher{
		BaseLauncher:  NewBaseLauncher(id, workDir, loop, logger),
		sdk:           sdk,
		logger:        logger,
		Image:         image,
		Cmd:           cmd,
		ContainerName: containerName,
		BindMounts:    mounts,
		Env:           env,
		StopGrace:     10 * time.Second,
	}
}

// FindArgs returns the container's Cmd, the closest analogue to a local
// process's argv this variant has.
func (c *ContainerLauncher) FindArgs() []string {
	return c.Cmd
}

// Start pulls the image if not already present, creates the container with
// BindMounts, starts it, and begins log forwarding and a wait goroutine that
// calls NotifyStop when the container exits.
func (c *ContainerLauncher) Start() (StartData, error) {
	if c.CurrentState() != StateBefore {
		return nil, &ProcessStateError{Op: "start", State: c.CurrentState()}
	}

	ctx := context.Background()

	platform := c.platformSpec()

	if err := pullImageIfNotPresent(ctx, c.sdk, c.Image, platform); err != nil {
		return nil, fmt.Errorf("launcher: pull image %q: %w", c.Image, err)
	}

	containerConfig := &container.Config{
		Image: c.Image,
		Cmd:   c.Cmd,
		Env:   c.Env,
	}
	hostConfig := &container.HostConfig{
		Mounts: c.BindMounts,
	}

	createResponse, err := c.sdk.ContainerCreate(ctx, containerConfig, hostConfig, nil, platform, c.ContainerName)
	if err != nil {
		return nil, fmt.Errorf("launcher: create container %q: %w", c.ContainerName, err)
	}
	c.containerID = createResponse.ID

	if err := c.sdk.ContainerStart(ctx, c.containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("launcher: start container %q: %w", c.ContainerName, err)
	}
	if c.logger != nil {
		c.logger.Info("container launcher started", "launcher_id", c.ID, "container_id", c.containerID[:12])
	}

	waitCtx, cancel := context.WithCancel(context.Background())
	c.cancelWait = cancel
	go c.forwardLogs(waitCtx)
	go c.awaitExit(waitCtx)

	startData := StartData{"container_id": c.containerID}
	if err := c.NotifyStart(startData); err != nil {
		return nil, err
	}
	return startData, nil
}

func (c *ContainerLauncher) forwardLogs(ctx context.Context) {
	logs, err := c.sdk.ContainerLogs(ctx, c.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("failed to attach container logs (non-fatal)", "launcher_id", c.ID, "error", err)
		}
		return
	}
	defer logs.Close()

	stdoutWriter := &slogLineWriter{logger: c.logger, level: slog.LevelInfo, pid: c.containerID}
	stderrWriter := &slogLineWriter{logger: c.logger, level: slog.LevelError, pid: c.containerID}
	_, _ = stdcopy.StdCopy(stdoutWriter, stderrWriter, logs)
}

func (c *ContainerLauncher) awaitExit(ctx context.Context) {
	statusCh, errCh := c.sdk.ContainerWait(ctx, c.containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil && c.logger != nil {
			c.logger.Warn("error waiting for container (non-fatal)", "launcher_id", c.ID, "error", err)
		}
		c.NotifyStop(StopData{"exit_code": -1, "container_id": c.containerID})
	case status := <-statusCh:
		c.removeContainer(context.Background())
		c.NotifyStop(StopData{"exit_code": status.StatusCode, "container_id": c.containerID})
	case <-ctx.Done():
		return
	}
}

func (c *ContainerLauncher) removeContainer(ctx context.Context) {
	err := c.sdk.ContainerRemove(ctx, c.containerID, container.RemoveOptions{Force: true})
	if err != nil && c.logger != nil {
		c.logger.Warn("failed to remove container (non-fatal)", "launcher_id", c.ID, "error", err)
	}
}

// Stop is the abstract default: interrupt_then_kill mapped onto container
// stop/kill. Signal(interrupt) issues a graceful container stop with
// StopGrace; any other signal forces a kill.
func (c *ContainerLauncher) Stop() error {
	if c.CurrentState() != StateRunning {
		return nil
	}
	c.Loop.RunAfter(c.gracePeriod(), func() {
		_ = c.Signal(SignalKill)
	})
	return c.Signal(SignalInterrupt)
}

func (c *ContainerLauncher) gracePeriod() time.Duration {
	if c.StopGrace == 0 {
		return 10 * time.Second
	}
	return c.StopGrace
}

// Signal maps SignalInterrupt to a graceful container stop request and any
// other signal to a forced kill, per SPEC_FULL §4.1.7.
func (c *ContainerLauncher) Signal(sig Signal) error {
	if c.CurrentState() != StateRunning {
		return nil
	}
	ctx := context.Background()
	switch sig {
	case SignalInterrupt:
		timeoutSeconds := int(c.gracePeriod().Seconds())
		return c.sdk.ContainerStop(ctx, c.containerID, container.StopOptions{Timeout: &timeoutSeconds})
	default:
		return c.sdk.ContainerKill(ctx, c.containerID, "KILL")
	}
}

// platformSpec turns c.Platform's "os/arch" pair into the *ocispec.Platform
// ContainerCreate and ImagePull expect, mirroring the control plane's own
// nginx container runner: a nil platform leaves the choice to the daemon,
// which picks the layer matching its own host.
func (c *ContainerLauncher) platformSpec() *ocispec.Platform {
	if c.Platform == "" {
		return nil
	}
	osName, arch, ok := strings.Cut(c.Platform, "/")
	if !ok {
		return nil
	}
	return &ocispec.Platform{OS: osName, Architecture: arch}
}

func pullImageIfNotPresent(ctx context.Context, sdk *dockerclient.Client, image string, platform *ocispec.Platform) error {
	_, _, err := sdk.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return nil
	}
	pullOpts := imagepkg.PullOptions{}
	if platform != nil {
		pullOpts.Platform = platform.OS + "/" + platform.Architecture
	}
	reader, err := sdk.ImagePull(ctx, image, pullOpts)
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

// slogLineWriter adapts an io.Writer to forward each line written to it to
// a *slog.Logger, used as the two sinks stdcopy.StdCopy demultiplexes
// container output into.
type slogLineWriter struct {
	logger *slog.Logger
	level  slog.Level
	pid    string
}

func (w *slogLineWriter) Write(p []byte) (int, error) {
	if w.logger != nil {
		w.logger.Log(context.Background(), w.level, string(p), "container_id", w.pid)
	}
	return len(p), nil
}
