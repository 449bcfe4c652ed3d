package compiler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storageABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"initial","type":"uint256"}]},
	{"type":"function","name":"set","stateMutability":"nonpayable","inputs":[{"name":"value","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"get","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"ValueChanged","anonymous":false,"inputs":[{"name":"value","type":"uint256","indexed":false}]},
	{"type":"receive","stateMutability":"payable"}
]`

type fakeService struct {
	output  *Output
	err     error
	version string
	inputs  []*Input
}

func (f *fakeService) Compile(_ context.Context, input *Input) (*Output, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func (f *fakeService) Version(context.Context) (string, error) {
	if f.version == "" {
		return "0.8.26+commit.8a97fa7a", nil
	}
	return f.version, nil
}

func outputWith(file string, contracts map[string]OutputContract, diagnostics ...failures.Diagnostic) *Output {
	return &Output{
		Errors:    diagnostics,
		Contracts: map[string]map[string]OutputContract{file: contracts},
	}
}

func contract(abiJSON, bytecode string) OutputContract {
	var c OutputContract
	c.ABI = json.RawMessage(abiJSON)
	c.EVM.Bytecode.Object = bytecode
	return c
}

var storageUnit = SourceUnit{
	FileName:     "SimpleStorage.sol",
	Content:      "contract SimpleStorage {}",
	ContractName: "SimpleStorage",
}

func TestCompile_ProducesArtifact(t *testing.T) {
	service := &fakeService{output: outputWith("SimpleStorage.sol", map[string]OutputContract{
		"SimpleStorage": contract(storageABI, "6080604052"),
	})}
	c := NewCompiler(service, Options{OptimizerEnabled: true, OptimizerRuns: 200})

	artifact, err := c.Compile(context.Background(), storageUnit)
	require.NoError(t, err)

	assert.Equal(t, "SimpleStorage", artifact.ContractName)
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, artifact.Bytecode)
	assert.Equal(t, "0.8.26+commit.8a97fa7a", artifact.CompilerVersion)
	assert.Equal(t, storageUnit.Hash(), artifact.SourceHash)
	assert.NotEmpty(t, artifact.CacheKey)

	var names []string
	for _, fn := range artifact.Functions {
		names = append(names, fn.Name)
	}
	assert.Equal(t, []string{"set", "get", "withdraw", "owner"}, names)

	get, ok := artifact.Function("get")
	require.True(t, ok)
	assert.Equal(t, View, get.Mutability)
	assert.Equal(t, "get()", get.Signature)
	assert.Equal(t, [4]byte{0x6d, 0x4c, 0xe6, 0x3c}, get.Selector)
	assert.Equal(t, []Param{{Name: "", Type: "uint256"}}, get.Outputs)

	set, ok := artifact.Function("set")
	require.True(t, ok)
	assert.Equal(t, NonPayable, set.Mutability)
	assert.Equal(t, []Param{{Name: "value", Type: "uint256"}}, set.Inputs)

	require.Len(t, service.inputs, 1)
	input := service.inputs[0]
	assert.Equal(t, "Solidity", input.Language)
	assert.Equal(t, storageUnit.Content, input.Sources["SimpleStorage.sol"].Content)
	assert.True(t, input.Settings.Optimizer.Enabled)
	assert.Equal(t, uint64(200), input.Settings.Optimizer.Runs)
	assert.Equal(t, []string{"abi", "evm.bytecode.object"}, input.Settings.OutputSelection["*"]["*"])
}

func TestCompile_WarningsDoNotBlock(t *testing.T) {
	service := &fakeService{output: outputWith("SimpleStorage.sol",
		map[string]OutputContract{"SimpleStorage": contract(storageABI, "0x6080")},
		failures.Diagnostic{Severity: "warning", Type: "Warning", Message: "SPDX license identifier not provided"},
	)}

	artifact, err := NewCompiler(service, Options{}).Compile(context.Background(), storageUnit)
	require.NoError(t, err)

	assert.NotEmpty(t, artifact.Bytecode)
	require.Len(t, artifact.Warnings, 1)
	assert.Equal(t, "SPDX license identifier not provided", artifact.Warnings[0].Message)
}

func TestCompile_FatalDiagnosticsWithholdArtifact(t *testing.T) {
	service := &fakeService{output: &Output{
		Errors: []failures.Diagnostic{
			{Severity: "warning", Message: "unused"},
			{
				Severity: "error",
				Type:     "ParserError",
				Message:  "Expected ';' but got '}'",
				Location: failures.Location{File: "SimpleStorage.sol", Start: 42, End: 43},
			},
		},
	}}

	artifact, err := NewCompiler(service, Options{}).Compile(context.Background(), storageUnit)
	require.Error(t, err)
	assert.Nil(t, artifact)
	assert.True(t, failures.Is(err, failures.KindCompilation))

	var perr *failures.Error
	require.True(t, errors.As(err, &perr))
	require.Len(t, perr.Diagnostics, 2)
	assert.Equal(t, "ParserError", perr.Diagnostics[1].Type)
	assert.Equal(t, 42, perr.Diagnostics[1].Location.Start)
}

func TestCompile_SelectsRequestedContract(t *testing.T) {
	service := &fakeService{output: &Output{
		Contracts: map[string]map[string]OutputContract{
			"SimpleStorage.sol": {
				"Ownable":       contract(`[{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}]`, "60aa"),
				"SimpleStorage": contract(storageABI, "60bb"),
			},
		},
	}}

	artifact, err := NewCompiler(service, Options{}).Compile(context.Background(), storageUnit)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0xbb}, artifact.Bytecode)
}

func TestCompile_ArtifactNotFound(t *testing.T) {
	service := &fakeService{output: outputWith("SimpleStorage.sol", map[string]OutputContract{
		"Other": contract(storageABI, "60aa"),
	})}

	_, err := NewCompiler(service, Options{}).Compile(context.Background(), storageUnit)
	require.Error(t, err)
	assert.True(t, failures.Is(err, failures.KindArtifactNotFound))
	assert.Contains(t, err.Error(), "Other")
}

func TestCompile_InterfaceHasNoArtifact(t *testing.T) {
	service := &fakeService{output: outputWith("SimpleStorage.sol", map[string]OutputContract{
		"SimpleStorage": contract(storageABI, ""),
	})}

	_, err := NewCompiler(service, Options{}).Compile(context.Background(), storageUnit)
	assert.True(t, failures.Is(err, failures.KindArtifactNotFound))
}

func TestCompile_UnlinkedLibraryPlaceholder(t *testing.T) {
	service := &fakeService{output: outputWith("SimpleStorage.sol", map[string]OutputContract{
		"SimpleStorage": contract(storageABI, "6080__$1f2a3b$__6040"),
	})}

	_, err := NewCompiler(service, Options{}).Compile(context.Background(), storageUnit)
	assert.True(t, failures.Is(err, failures.KindCompilation))
}

func TestCompile_ServiceFailure(t *testing.T) {
	service := &fakeService{err: errors.New("solc: command not found")}

	_, err := NewCompiler(service, Options{}).Compile(context.Background(), storageUnit)
	assert.True(t, failures.Is(err, failures.KindCompilation))
	assert.Contains(t, err.Error(), "solc: command not found")
}

func TestCompile_Deterministic(t *testing.T) {
	service := &fakeService{output: outputWith("SimpleStorage.sol", map[string]OutputContract{
		"SimpleStorage": contract(storageABI, "6080604052"),
	})}
	c := NewCompiler(service, Options{})

	first, err := c.Compile(context.Background(), storageUnit)
	require.NoError(t, err)
	second, err := c.Compile(context.Background(), storageUnit)
	require.NoError(t, err)

	assert.Equal(t, first.Bytecode, second.Bytecode)
	assert.Equal(t, first.CacheKey, second.CacheKey)
	assert.Equal(t, service.inputs[0], service.inputs[1])
}

func TestCacheKey(t *testing.T) {
	service := &fakeService{}
	ctx := context.Background()

	base, err := NewCompiler(service, Options{}).CacheKey(ctx, storageUnit)
	require.NoError(t, err)

	changed := storageUnit
	changed.Content += "\n"
	otherSource, err := NewCompiler(service, Options{}).CacheKey(ctx, changed)
	require.NoError(t, err)

	otherSettings, err := NewCompiler(service, Options{OptimizerEnabled: true}).CacheKey(ctx, storageUnit)
	require.NoError(t, err)

	otherVersion, err := NewCompiler(&fakeService{version: "0.8.27"}, Options{}).CacheKey(ctx, storageUnit)
	require.NoError(t, err)

	assert.NotEqual(t, base, otherSource)
	assert.NotEqual(t, base, otherSettings)
	assert.NotEqual(t, base, otherVersion)
}

func TestNewArtifact_Overloads(t *testing.T) {
	overloaded := `[
		{"type":"function","name":"store","stateMutability":"nonpayable","inputs":[{"name":"a","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"store","stateMutability":"payable","inputs":[{"name":"a","type":"uint256"},{"name":"b","type":"bytes32"}],"outputs":[]},
		{"type":"function","name":"peek","constant":true,"inputs":[],"outputs":[{"name":"","type":"bytes32"}]}
	]`

	artifact, err := NewArtifact("Overloaded", []byte{0x00}, json.RawMessage(overloaded))
	require.NoError(t, err)
	require.Len(t, artifact.Functions, 3)

	assert.Equal(t, "store", artifact.Functions[0].Name)
	assert.Equal(t, "store(uint256)", artifact.Functions[0].Signature)
	assert.Equal(t, "store0", artifact.Functions[1].Name)
	assert.Equal(t, "store(uint256,bytes32)", artifact.Functions[1].Signature)
	assert.Equal(t, Payable, artifact.Functions[1].Mutability)
	assert.Equal(t, View, artifact.Functions[2].Mutability)
}

func TestParseVersion(t *testing.T) {
	out := []byte("solc, the solidity compiler commandline interface\nVersion: 0.8.26+commit.8a97fa7a.Linux.g++\n")
	version, err := ParseVersion(out)
	require.NoError(t, err)
	assert.Equal(t, "0.8.26+commit.8a97fa7a", version)

	_, err = ParseVersion([]byte("garbage"))
	assert.Error(t, err)
}
