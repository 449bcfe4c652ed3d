package compiler

import (
	"encoding/json"

	"github.com/compose-network/contract-pipeline/internal/failures"
)

const languageSolidity = "Solidity"

// Input is a solc standard JSON request.
type (
	Input struct {
		Language string                 `json:"language"`
		Sources  map[string]InputSource `json:"sources"`
		Settings Settings               `json:"settings"`
	}

	InputSource struct {
		Content string `json:"content"`
	}

	Settings struct {
		Optimizer       Optimizer                      `json:"optimizer"`
		EVMVersion      string                         `json:"evmVersion,omitempty"`
		OutputSelection map[string]map[string][]string `json:"outputSelection"`
	}

	Optimizer struct {
		Enabled bool   `json:"enabled"`
		Runs    uint64 `json:"runs"`
	}
)

// Output is a solc standard JSON response, reduced to what the adapter reads.
type (
	Output struct {
		Errors    []failures.Diagnostic                `json:"errors"`
		Contracts map[string]map[string]OutputContract `json:"contracts"`
		Sources   map[string]struct {
			ID int `json:"id"`
		} `json:"sources"`
	}

	OutputContract struct {
		ABI json.RawMessage `json:"abi"`
		EVM struct {
			Bytecode struct {
				Object string `json:"object"`
			} `json:"bytecode"`
		} `json:"evm"`
	}
)

var defaultOutputSelection = map[string]map[string][]string{
	"*": {
		"*": {"abi", "evm.bytecode.object"},
	},
}
