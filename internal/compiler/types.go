package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

type Mutability uint8

const (
	Pure Mutability = iota
	View
	NonPayable
	Payable
)

func (m Mutability) String() string {
	switch m {
	case Pure:
		return "pure"
	case View:
		return "view"
	case NonPayable:
		return "nonpayable"
	case Payable:
		return "payable"
	default:
		return fmt.Sprintf("mutability(%d)", uint8(m))
	}
}

// ReadOnly reports whether a function can be queried without a transaction.
func (m Mutability) ReadOnly() bool {
	return m == Pure || m == View
}

type (
	// SourceUnit is one Solidity file plus the contract to extract from it.
	SourceUnit struct {
		FileName     string
		Content      string
		ContractName string
	}

	Param struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}

	// FunctionDescriptor describes one callable function of a contract.
	FunctionDescriptor struct {
		Name       string
		Signature  string
		Selector   [4]byte
		Inputs     []Param
		Outputs    []Param
		Mutability Mutability
	}

	// CompiledArtifact is the deployable output for one contract. It is never mutated after
	// construction.
	CompiledArtifact struct {
		ContractName    string
		Bytecode        []byte
		ABI             abi.ABI
		RawABI          json.RawMessage
		Functions       []FunctionDescriptor
		SourceHash      string
		CacheKey        string
		CompilerVersion string
		Warnings        []failures.Diagnostic
	}
)

// Hash identifies the source text of the unit.
func (s SourceUnit) Hash() string {
	h := sha256.New()
	h.Write([]byte(s.FileName))
	h.Write([]byte{0})
	h.Write([]byte(s.ContractName))
	h.Write([]byte{0})
	h.Write([]byte(s.Content))
	return hex.EncodeToString(h.Sum(nil))
}

// Function returns the descriptor registered under name.
func (a *CompiledArtifact) Function(name string) (FunctionDescriptor, bool) {
	for _, fn := range a.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return FunctionDescriptor{}, false
}

// NewArtifact parses rawABI and builds the function descriptors in declaration order.
func NewArtifact(contractName string, bytecode []byte, rawABI json.RawMessage) (*CompiledArtifact, error) {
	parsedABI, err := abi.JSON(bytesReader(rawABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI for %s: %w", contractName, err)
	}

	functions, err := describeFunctions(parsedABI, rawABI)
	if err != nil {
		return nil, fmt.Errorf("failed to describe functions for %s: %w", contractName, err)
	}

	return &CompiledArtifact{
		ContractName: contractName,
		Bytecode:     bytecode,
		ABI:          parsedABI,
		RawABI:       rawABI,
		Functions:    functions,
	}, nil
}
