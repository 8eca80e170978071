package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
)

const (
	labelManagedBy = "agentcore.managed-by"
	labelIdentity  = "agentcore.identity"
	managedByValue = "agentcore"

	// DefaultNetwork is the bridge network agentcore containers join.
	DefaultNetwork = "agentcore"
)

// DockerRuntime spawns one identity's orchestrator inside a container
// instead of a bare process, for stronger isolation. It is opt-in (selected
// by an env var at supervisor startup) and strictly additional: containers
// still talk to the supervisor over the same local Unix-domain socket,
// bind-mounted in, not a replacement communication channel.
//
// Adapted from the teacher's internal/ruriko/runtime/docker.Adapter,
// generalized from "agent container" to "identity orchestrator container"
// and narrowed to this package's Runtime interface.
type DockerRuntime struct {
	client     *dockerclient.Client
	network    string
	socketPath string
}

// NewDockerRuntime constructs a DockerRuntime using the DOCKER_HOST env var
// or the default socket, bind-mounting socketPath into every spawned
// container so it can reach the supervisor's IPC endpoint.
func NewDockerRuntime(networkName, socketPath string) (*DockerRuntime, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("runtime: docker client: %w", err)
	}
	if networkName == "" {
		networkName = DefaultNetwork
	}
	return &DockerRuntime{client: cli, network: networkName, socketPath: socketPath}, nil
}

// EnsureNetwork creates the agentcore bridge network if absent.
func (d *DockerRuntime) EnsureNetwork(ctx context.Context) error {
	nets, err := d.client.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", d.network)),
	})
	if err != nil {
		return fmt.Errorf("runtime: list networks: %w", err)
	}
	for _, n := range nets {
		if n.Name == d.network {
			return nil
		}
	}
	_, err = d.client.NetworkCreate(ctx, d.network, network.CreateOptions{
		Driver:     "bridge",
		Attachable: true,
		Labels:     map[string]string{labelManagedBy: managedByValue},
	})
	if err != nil {
		return fmt.Errorf("runtime: create network %q: %w", d.network, err)
	}
	return nil
}

func containerNameFor(identity string) string {
	return "agentcore-" + identity
}

// mapContainerState translates a Docker container status string into this
// package's State enum. Mirrors the teacher's parseContainerState, narrowed
// to the three states the Runtime interface distinguishes.
func mapContainerState(status string) State {
	switch strings.ToLower(status) {
	case "running":
		return StateRunning
	case "exited", "dead":
		return StateExited
	default:
		return StateUnknown
	}
}

func (d *DockerRuntime) Spawn(ctx context.Context, spec Spec) (Handle, error) {
	if spec.BinaryPath == "" {
		return Handle{}, fmt.Errorf("runtime: spec.BinaryPath (image) is required for the docker runtime")
	}

	env := []string{
		fmt.Sprintf("AGENTCORE_IDENTITY=%s", spec.Identity),
	}
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	labels := map[string]string{
		labelManagedBy: managedByValue,
		labelIdentity:  spec.Identity,
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	name := containerNameFor(spec.Identity)
	cmd := append([]string{"run", spec.Identity}, spec.Args...)

	containerCfg := &container.Config{
		Image:  spec.BinaryPath,
		Env:    env,
		Labels: labels,
		Cmd:    cmd,
	}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: "no"}, // restart policy is the Supervisor's job, not Docker's
		Binds:         []string{fmt.Sprintf("%s:%s", d.socketPath, d.socketPath)},
	}
	networkCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			d.network: {},
		},
	}

	resp, err := d.client.ContainerCreate(ctx, containerCfg, hostCfg, networkCfg, nil, name)
	if err != nil {
		return Handle{}, fmt.Errorf("runtime: create container: %w", err)
	}
	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return Handle{}, fmt.Errorf("runtime: start container: %w", err)
	}

	return Handle{Identity: spec.Identity, ID: resp.ID}, nil
}

func (d *DockerRuntime) Stop(ctx context.Context, h Handle, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	if err := d.client.ContainerStop(ctx, h.ID, container.StopOptions{Timeout: &secs}); err != nil {
		return fmt.Errorf("runtime: stop container %s: %w", h.ID, err)
	}
	return nil
}

func (d *DockerRuntime) Status(ctx context.Context, h Handle) (Status, error) {
	inspect, err := d.client.ContainerInspect(ctx, h.ID)
	if err != nil {
		if dockerclient.IsErrNotFound(err) {
			return Status{State: StateUnknown}, nil
		}
		return Status{}, fmt.Errorf("runtime: inspect container: %w", err)
	}
	state := mapContainerState(inspect.State.Status)
	startedAt, _ := time.Parse(time.RFC3339Nano, inspect.State.StartedAt)
	finishedAt, _ := time.Parse(time.RFC3339Nano, inspect.State.FinishedAt)
	return Status{
		State:      state,
		ExitCode:   inspect.State.ExitCode,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}, nil
}

func (d *DockerRuntime) Wait(ctx context.Context, h Handle) (int, error) {
	statusCh, errCh := d.client.ContainerWait(ctx, h.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, fmt.Errorf("runtime: wait container %s: %w", h.ID, err)
	case st := <-statusCh:
		return int(st.StatusCode), nil
	}
}
