// Package devchain runs a disposable anvil node in a container for local development.
package devchain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/compose-network/contract-pipeline/internal/infra/docker"
	"github.com/compose-network/contract-pipeline/internal/logger"
	"github.com/compose-network/contract-pipeline/internal/network"
)

const (
	DefaultImage   = "ghcr.io/foundry-rs/foundry:latest"
	DefaultName    = "contract-pipeline-anvil"
	DefaultPort    = 8545
	DefaultChainID = 31337

	containerPort = 8545
	rpcAttempts   = 30
	rpcInterval   = time.Second
)

type (
	Containers interface {
		EnsureImage(ctx context.Context, image string) error
		StartService(ctx context.Context, opts docker.ServiceOptions) (string, error)
		RemoveService(ctx context.Context, name string) error
	}

	Options struct {
		Name    string
		Image   string
		Port    int
		ChainID uint64
		// BlockTime seals blocks on a timer instead of per transaction when set.
		BlockTime time.Duration
	}

	Chain struct {
		containers Containers
		opts       Options
		waitForRPC func(ctx context.Context, url string, attempts int, interval time.Duration) error
		logger     *slog.Logger
	}
)

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Image == "" {
		o.Image = DefaultImage
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.ChainID == 0 {
		o.ChainID = DefaultChainID
	}
	return o
}

func New(containers Containers, opts Options) *Chain {
	opts = opts.withDefaults()
	return &Chain{
		containers: containers,
		opts:       opts,
		waitForRPC: network.WaitForRPC,
		logger:     logger.Named("devchain").With("name", opts.Name),
	}
}

// URL is the host side JSON-RPC endpoint.
func (c *Chain) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.opts.Port)
}

// Up replaces any running node with the same name and blocks until its RPC answers.
func (c *Chain) Up(ctx context.Context) (string, error) {
	if err := c.containers.EnsureImage(ctx, c.opts.Image); err != nil {
		return "", fmt.Errorf("failed to prepare image %s: %w", c.opts.Image, err)
	}

	id, err := c.containers.StartService(ctx, docker.ServiceOptions{
		Name:  c.opts.Name,
		Image: c.opts.Image,
		Cmd:   []string{c.command()},
		Ports: map[int]int{containerPort: c.opts.Port},
	})
	if err != nil {
		return "", fmt.Errorf("failed to start dev chain: %w", err)
	}

	c.logger.With("container_id", id).With("url", c.URL()).Info("waiting for dev chain RPC")
	if err := c.waitForRPC(ctx, c.URL(), rpcAttempts, rpcInterval); err != nil {
		return "", fmt.Errorf("dev chain did not become ready: %w", err)
	}

	c.logger.With("url", c.URL()).With("chain_id", c.opts.ChainID).Info("dev chain ready")
	return c.URL(), nil
}

func (c *Chain) Down(ctx context.Context) error {
	if err := c.containers.RemoveService(ctx, c.opts.Name); err != nil {
		return fmt.Errorf("failed to stop dev chain: %w", err)
	}
	return nil
}

// command is a single shell string; the foundry image runs its command through sh -c.
func (c *Chain) command() string {
	args := []string{
		"anvil",
		"--host", "0.0.0.0",
		"--port", strconv.Itoa(containerPort),
		"--chain-id", strconv.FormatUint(c.opts.ChainID, 10),
	}
	if c.opts.BlockTime > 0 {
		args = append(args, "--block-time", strconv.Itoa(int(c.opts.BlockTime.Seconds())))
	}
	return strings.Join(args, " ")
}
