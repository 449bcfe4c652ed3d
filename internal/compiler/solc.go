package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sync"
)

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+(\+commit\.[0-9a-f]+)?`)

// SolcExec runs a solc binary found on the host in standard JSON mode
type SolcExec struct {
	path string

	versionMu sync.Mutex
	version   string
}

func NewSolcExec(path string) *SolcExec {
	if path == "" {
		path = "solc"
	}
	return &SolcExec{path: path}
}

// Compile pipes input to solc --standard-json and decodes the response
func (s *SolcExec) Compile(ctx context.Context, input *Input) (*Output, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal standard JSON input: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.path, "--standard-json")
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("solc failed: %w (stderr: %s)", err, stderr.String())
	}

	return DecodeOutput(stdout)
}

// Version returns the version reported by solc --version. A successful answer is cached for
// the life of the value.
func (s *SolcExec) Version(ctx context.Context) (string, error) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()

	if s.version != "" {
		return s.version, nil
	}

	out, err := exec.CommandContext(ctx, s.path, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("error while executing solc: %w (output: %s)", err, string(out))
	}
	version, err := ParseVersion(out)
	if err != nil {
		return "", err
	}

	s.version = version
	return version, nil
}

// ParseVersion extracts the version string from solc --version output.
func ParseVersion(out []byte) (string, error) {
	version := versionPattern.FindString(string(out))
	if version == "" {
		return "", errors.New("could not parse solc version")
	}
	return version, nil
}

// DecodeOutput decodes a standard JSON response.
func DecodeOutput(data []byte) (*Output, error) {
	var output Output
	if err := json.Unmarshal(bytes.TrimSpace(data), &output); err != nil {
		return nil, fmt.Errorf("failed to parse solc output: %w", err)
	}
	return &output, nil
}
