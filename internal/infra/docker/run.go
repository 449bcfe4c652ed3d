package docker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/moby/go-archive"
)

type (
	// RunOptions describes a one-shot container. Files are copied into CopyDir before the
	// container starts, which works against remote daemons where bind mounts do not.
	RunOptions struct {
		Image   string
		Cmd     []string
		Env     []string
		Files   map[string][]byte
		CopyDir string
	}

	RunResult struct {
		Stdout   []byte
		Stderr   []byte
		ExitCode int64
	}
)

// Run runs a container to completion and returns its captured output. A non-zero exit code
// is reported in the result, not as an error.
func (c *Client) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	config := &container.Config{
		Image: opts.Image,
		Cmd:   opts.Cmd,
		Env:   opts.Env,
	}

	resp, err := c.cli.ContainerCreate(ctx, config, &container.HostConfig{}, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	containerID := resp.ID
	defer func() {
		// the caller's context may be done already
		if rmErr := c.cli.ContainerRemove(context.WithoutCancel(ctx), containerID, container.RemoveOptions{Force: true}); rmErr != nil {
			c.logger.With("container_id", containerID).With("err", rmErr.Error()).Warn("failed to remove container")
		}
	}()

	if len(opts.Files) > 0 {
		if err := c.copyFiles(ctx, containerID, opts.CopyDir, opts.Files); err != nil {
			return nil, err
		}
	}

	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	var exitCode int64
	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("error waiting for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := c.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, fmt.Errorf("failed to demultiplex container logs: %w", err)
	}

	return &RunResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}

// copyFiles stages files in a temporary directory and streams it into the container as a tar
// archive.
func (c *Client) copyFiles(ctx context.Context, containerID, dstDir string, files map[string][]byte) error {
	stage, err := os.MkdirTemp("", "contract-pipeline-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	for name, content := range files {
		path := filepath.Join(stage, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", name, err)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}
	}

	tarball, err := archive.TarWithOptions(stage, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer tarball.Close()

	if dstDir == "" {
		dstDir = "/"
	}
	if err := c.cli.CopyToContainer(ctx, containerID, dstDir, tarball, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy files into container: %w", err)
	}

	return nil
}
