package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/compose-network/contract-pipeline/internal/infra/docker"
)

const (
	dockerInputDir  = "/"
	dockerInputFile = "standard-input.json"
)

// ContainerRunner runs one-shot containers. *docker.Client implements it.
type ContainerRunner interface {
	EnsureImage(ctx context.Context, imageName string) error
	Run(ctx context.Context, opts docker.RunOptions) (*docker.RunResult, error)
}

// SolcDocker runs solc from an ethereum/solc image, so no compiler has to be installed on the
// host.
type SolcDocker struct {
	runner ContainerRunner
	image  string

	mu      sync.Mutex
	ensured bool
	version string
}

func NewSolcDocker(runner ContainerRunner, image string) *SolcDocker {
	return &SolcDocker{runner: runner, image: image}
}

func (s *SolcDocker) ensureImage(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured {
		return nil
	}
	if err := s.runner.EnsureImage(ctx, s.image); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

// Compile copies input into a fresh container and runs solc --standard-json on it
func (s *SolcDocker) Compile(ctx context.Context, input *Input) (*Output, error) {
	if err := s.ensureImage(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare solc image %s: %w", s.image, err)
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal standard JSON input: %w", err)
	}

	result, err := s.runner.Run(ctx, docker.RunOptions{
		Image:   s.image,
		Cmd:     []string{"--standard-json", path.Join(dockerInputDir, dockerInputFile)},
		Files:   map[string][]byte{dockerInputFile: payload},
		CopyDir: dockerInputDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run solc container: %w", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("solc container exited with code %d: %s", result.ExitCode, strings.TrimSpace(string(result.Stderr)))
	}

	return DecodeOutput(result.Stdout)
}

// Version runs solc --version inside the image until it gets an answer, then caches it
func (s *SolcDocker) Version(ctx context.Context) (string, error) {
	s.mu.Lock()
	cached := s.version
	s.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	version, err := s.runVersion(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.version = version
	s.mu.Unlock()
	return version, nil
}

func (s *SolcDocker) runVersion(ctx context.Context) (string, error) {
	if err := s.ensureImage(ctx); err != nil {
		return "", fmt.Errorf("failed to prepare solc image %s: %w", s.image, err)
	}

	result, err := s.runner.Run(ctx, docker.RunOptions{
		Image: s.image,
		Cmd:   []string{"--version"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to run solc container: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("solc --version exited with code %d: %s", result.ExitCode, strings.TrimSpace(string(result.Stderr)))
	}

	return ParseVersion(result.Stdout)
}
