package configs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var Values Config

type (
	CompilerBackend string

	Config struct {
		Network  Network  `mapstructure:"network"`
		Compiler Compiler `mapstructure:"compiler"`
		Store    Store    `mapstructure:"store"`
		Sender   Sender   `mapstructure:"sender"`
		DevChain DevChain `mapstructure:"devchain"`
		Log      Log      `mapstructure:"log"`
	}

	Network struct {
		RPCURL           string        `mapstructure:"rpc-url"`
		CallTimeout      time.Duration `mapstructure:"call-timeout"`
		ReceiptTimeout   time.Duration `mapstructure:"receipt-timeout"`
		GasMarginPercent uint64        `mapstructure:"gas-margin-percent"`
	}

	Compiler struct {
		Backend    CompilerBackend `mapstructure:"backend"`
		SolcPath   string          `mapstructure:"solc-path"`
		Image      string          `mapstructure:"image"`
		Optimizer  bool            `mapstructure:"optimizer"`
		Runs       uint64          `mapstructure:"runs"`
		EVMVersion string          `mapstructure:"evm-version"`
	}

	Store struct {
		ArtifactsDir    string `mapstructure:"artifacts-dir"`
		DeploymentsFile string `mapstructure:"deployments-file"`
	}

	Sender struct {
		PrivateKey string `mapstructure:"private-key"`
		// SecondPrivateKey is an optional second account, used to show owner-only guards.
		SecondPrivateKey string `mapstructure:"second-private-key"`
	}

	DevChain struct {
		Name    string `mapstructure:"name"`
		Image   string `mapstructure:"image"`
		Port    int    `mapstructure:"port"`
		ChainID uint64 `mapstructure:"chain-id"`
	}

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	}
)

const (
	CompilerBackendLocal  CompilerBackend = "local"
	CompilerBackendDocker CompilerBackend = "docker"
)

// Validate checks the settings every network facing command needs.
func (c *Config) Validate() error {
	var errs []error

	if c.Network.RPCURL == "" {
		errs = append(errs, errors.New("network.rpc-url is required"))
	}
	if c.Network.CallTimeout < 0 {
		errs = append(errs, errors.New("network.call-timeout must not be negative"))
	}
	if c.Network.ReceiptTimeout < 0 {
		errs = append(errs, errors.New("network.receipt-timeout must not be negative"))
	}

	if err := c.Compiler.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Store.ArtifactsDir == "" {
		errs = append(errs, errors.New("store.artifacts-dir is required"))
	}
	if c.Store.DeploymentsFile == "" {
		errs = append(errs, errors.New("store.deployments-file is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (c *Compiler) Validate() error {
	var errs []error

	switch c.Backend {
	case CompilerBackendLocal:
		if c.SolcPath == "" {
			errs = append(errs, errors.New("compiler.solc-path is required for the local backend"))
		}
	case CompilerBackendDocker:
		if c.Image == "" {
			errs = append(errs, errors.New("compiler.image is required for the docker backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("compiler.backend must be either '%s' or '%s'", CompilerBackendLocal, CompilerBackendDocker))
	}

	if c.Optimizer && c.Runs == 0 {
		errs = append(errs, errors.New("compiler.runs must be positive when the optimizer is enabled"))
	}

	return errors.Join(errs...)
}

// RequireSender checks that a signing key is configured.
func (s *Sender) RequireSender() error {
	if strings.TrimSpace(s.PrivateKey) == "" {
		return errors.New("sender.private-key is required")
	}
	return nil
}
