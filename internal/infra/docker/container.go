package docker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
)

// ServiceOptions describes a long running container with published TCP ports.
type ServiceOptions struct {
	Name  string
	Image string
	Cmd   []string
	// Ports maps container ports to host ports.
	Ports map[int]int
}

// StartService creates and starts a detached container, replacing any container that already
// carries the same name.
func (c *Client) StartService(ctx context.Context, opts ServiceOptions) (string, error) {
	if err := c.RemoveService(ctx, opts.Name); err != nil {
		return "", err
	}

	exposed, bindings, err := portSpecs(opts.Ports)
	if err != nil {
		return "", err
	}

	config := &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Cmd,
		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		PortBindings: bindings,
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", opts.Name, err)
	}

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", opts.Name, err)
	}

	c.logger.
		With("name", opts.Name).
		With("image", opts.Image).
		With("container_id", resp.ID).
		Info("container started")

	return resp.ID, nil
}

// RemoveService force-removes the named container. A missing container is not an error.
func (c *Client) RemoveService(ctx context.Context, name string) error {
	if _, err := c.cli.ContainerInspect(ctx, name); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	if err := c.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}

	c.logger.With("name", name).Info("container removed")
	return nil
}

func portSpecs(ports map[int]int) (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for containerPort, hostPort := range ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid container port %d: %w", containerPort, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(hostPort)}}
	}
	return exposed, bindings, nil
}
