package docker

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/sandboxkit/sandboxctl/internal/logger"
)

// ContainerInfo describes an existing container.
type ContainerInfo struct {
	ID      string
	Name    string
	Image   string
	State   string // created, running, exited, ...
	Running bool
}

// VolumeMount binds a named volume into the container.
type VolumeMount struct {
	Volume string
	Target string
}

// ContainerSpec holds everything needed to create a tenant container.
type ContainerSpec struct {
	Name        string
	Image       string
	Env         []string
	Labels      map[string]string
	Mounts      []VolumeMount
	Network     string
	Hostname    string
	ExposedPort int // container port published on an ephemeral host port; 0 disables
}

// ContainerByName looks a container up by exact name, in any state.
// Returns (nil, nil) when no such container exists.
func (c *Client) ContainerByName(ctx context.Context, name string) (*ContainerInfo, error) {
	list, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	// The name filter matches substrings; require an exact match against
	// the slash-prefixed name docker reports.
	for _, summary := range list {
		for _, n := range summary.Names {
			if strings.TrimPrefix(n, "/") == name {
				return &ContainerInfo{
					ID:      summary.ID,
					Name:    name,
					Image:   summary.Image,
					State:   summary.State,
					Running: summary.State == "running",
				}, nil
			}
		}
	}
	return nil, nil
}

// ManagedContainers lists every container carrying the managed label, in
// any state. Labels are included so callers can read tenant metadata.
func (c *Client) ManagedContainers(ctx context.Context) ([]ContainerInfo, map[string]map[string]string, error) {
	list, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ManagedLabel+"=true")),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list managed containers: %w", err)
	}

	infos := make([]ContainerInfo, 0, len(list))
	labels := make(map[string]map[string]string, len(list))
	for _, summary := range list {
		name := ""
		if len(summary.Names) > 0 {
			name = strings.TrimPrefix(summary.Names[0], "/")
		}
		infos = append(infos, ContainerInfo{
			ID:      summary.ID,
			Name:    name,
			Image:   summary.Image,
			State:   summary.State,
			Running: summary.State == "running",
		})
		labels[name] = summary.Labels
	}
	return infos, labels, nil
}

// RemoveContainer removes a container, force-stopping it when force is set.
// Named volumes are never removed alongside the container.
func (c *Client) RemoveContainer(ctx context.Context, id string, force bool) error {
	err := c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}

// CreateContainer creates a container from the spec and returns its ID.
func (c *Client) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	cfg := &container.Config{
		Image:    spec.Image,
		Env:      spec.Env,
		Labels:   managedLabels(spec.Labels),
		Hostname: spec.Hostname,
	}

	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}
	for _, m := range spec.Mounts {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: m.Volume,
			Target: m.Target,
		})
	}

	if spec.ExposedPort > 0 {
		port, err := nat.NewPort("tcp", fmt.Sprintf("%d", spec.ExposedPort))
		if err != nil {
			return "", fmt.Errorf("invalid exposed port %d: %w", spec.ExposedPort, err)
		}
		cfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		hostCfg.PortBindings = nat.PortMap{
			// Empty host binding publishes on an ephemeral host port.
			port: []nat.PortBinding{{}},
		}
	}

	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {},
			},
		}
	}

	resp, err := c.api.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	logger.Debug("container created",
		logger.KeyTenant, spec.Name,
		logger.KeyContainer, resp.ID,
		logger.KeyImage, spec.Image)
	return resp.ID, nil
}

// StartContainer starts a created container.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	if err := c.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", id, err)
	}
	return nil
}

// ContainerRunning reports whether the container's main process is up.
func (c *Client) ContainerRunning(ctx context.Context, id string) (bool, error) {
	inspect, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to inspect container %s: %w", id, err)
	}
	return inspect.State != nil && inspect.State.Running, nil
}

// ContainerLogs returns up to tail lines of the container's combined
// stdout/stderr output.
func (c *Client) ContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	rc, err := c.api.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", tail),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch logs for container %s: %w", id, err)
	}
	defer rc.Close()

	// Logs from non-TTY containers are multiplexed; demux into one stream.
	var buf strings.Builder
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read logs for container %s: %w", id, err)
	}
	return buf.String(), nil
}
