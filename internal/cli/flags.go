package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagDef defines a command-line flag bound to a configuration key.
type (
	flagType interface {
		string | int | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

var (
	stringFlags = []flagDef[string]{
		// Network
		{"rpc-url", "network.rpc-url", "http://127.0.0.1:8545", "JSON-RPC endpoint of the target network"},
		{"call-timeout", "network.call-timeout", "15s", "Timeout of a single RPC call"},
		{"receipt-timeout", "network.receipt-timeout", "2m", "How long to wait for a transaction to be mined"},

		// Compiler
		{"compiler-backend", "compiler.backend", "docker", "Compiler backend (local or docker)"},
		{"solc-path", "compiler.solc-path", "solc", "Path of the local solc binary"},
		{"solc-image", "compiler.image", "ethereum/solc:0.8.26", "solc image for the docker backend"},
		{"evm-version", "compiler.evm-version", "", "Target EVM version, empty for the compiler default"},

		// Store
		{"artifacts-dir", "store.artifacts-dir", "./build/artifacts", "Directory of compiled artifacts"},
		{"deployments-file", "store.deployments-file", "./build/deployments.yaml", "File recording deployed contracts"},

		// Sender
		{"private-key", "sender.private-key", "", "Private key of the sending account"},
		{"second-private-key", "sender.second-private-key", "", "Optional second account"},

		// Dev chain
		{"devchain-name", "devchain.name", "contract-pipeline-anvil", "Container name of the dev chain"},
		{"devchain-image", "devchain.image", "ghcr.io/foundry-rs/foundry:latest", "Image of the dev chain"},

		// Logging
		{"log-level", "log.level", "info", "Log level (debug, info, warn, error)"},
		{"log-format", "log.format", "text", "Log format (text or json)"},
	}

	intFlags = []flagDef[int]{
		{"gas-margin-percent", "network.gas-margin-percent", 20, "Percentage added on top of the gas estimate"},
		{"optimizer-runs", "compiler.runs", 200, "solc optimizer runs"},
		{"devchain-port", "devchain.port", 8545, "Host port of the dev chain RPC"},
		{"devchain-chain-id", "devchain.chain-id", 31337, "Chain ID of the dev chain"},
	}

	boolFlags = []flagDef[bool]{
		{"optimizer", "compiler.optimizer", true, "Enable the solc optimizer"},
	}
)

// declareFlags declares multiple flags on cmd and binds them to viper configuration keys.
func declareFlags[T flagType](cmd *cobra.Command, flags []flagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(cmd, flag); err != nil {
			return err
		}
	}
	return nil
}

// declareFlag declares a single persistent flag, so every subcommand accepts it.
func declareFlag[T flagType](cmd *cobra.Command, flag flagDef[T]) error {
	switch value := any(flag.defaultValue).(type) {
	case string:
		cmd.PersistentFlags().String(flag.name, value, flag.description)
	case int:
		cmd.PersistentFlags().Int(flag.name, value, flag.description)
	case bool:
		cmd.PersistentFlags().Bool(flag.name, value, flag.description)
	}
	return viper.BindPFlag(flag.viperKey, cmd.PersistentFlags().Lookup(flag.name))
}

// Register declares the configuration flags on root and attaches every command.
func Register(root *cobra.Command) error {
	if err := declareFlags(root, stringFlags); err != nil {
		return err
	}
	if err := declareFlags(root, intFlags); err != nil {
		return err
	}
	if err := declareFlags(root, boolFlags); err != nil {
		return err
	}

	root.AddCommand(
		compileCmd(),
		deployCmd(),
		callCmd(),
		sendCmd(),
		fundCmd(),
		balanceCmd(),
		accountsCmd(),
		devchainCmd(),
		walkthroughCmd(),
	)
	return nil
}
