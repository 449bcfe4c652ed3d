package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/logger"
)

const opCompile = "compile"

type (
	// Service runs a solc standard JSON compilation. Implementations only transport the request;
	// interpreting the result is the Compiler's job.
	Service interface {
		Compile(ctx context.Context, input *Input) (*Output, error)
		Version(ctx context.Context) (string, error)
	}

	Options struct {
		OptimizerEnabled bool
		OptimizerRuns    uint64
		EVMVersion       string
	}

	// Compiler turns source units into compiled artifacts
	Compiler struct {
		service  Service
		settings Settings
		logger   *slog.Logger
	}
)

// NewCompiler creates a compiler adapter on top of service
func NewCompiler(service Service, opts Options) *Compiler {
	return &Compiler{
		service: service,
		settings: Settings{
			Optimizer: Optimizer{
				Enabled: opts.OptimizerEnabled,
				Runs:    opts.OptimizerRuns,
			},
			EVMVersion:      opts.EVMVersion,
			OutputSelection: defaultOutputSelection,
		},
		logger: logger.Named("contracts_compiler"),
	}
}

// CacheKey identifies the artifact unit would compile into. Equal keys mean byte-identical
// output, so callers may skip compilation when a stored artifact carries the same key.
func (c *Compiler) CacheKey(ctx context.Context, unit SourceUnit) (string, error) {
	version, err := c.service.Version(ctx)
	if err != nil {
		return "", failures.Wrap(failures.KindCompilation, opCompile, fmt.Errorf("failed to get compiler version: %w", err))
	}

	return c.cacheKey(unit, version)
}

func (c *Compiler) cacheKey(unit SourceUnit, version string) (string, error) {
	settings, err := json.Marshal(c.settings)
	if err != nil {
		return "", fmt.Errorf("failed to marshal compiler settings: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(unit.Hash()))
	h.Write(settings)
	h.Write([]byte(version))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Compile compiles unit and extracts the artifact of unit.ContractName.
func (c *Compiler) Compile(ctx context.Context, unit SourceUnit) (*CompiledArtifact, error) {
	log := c.logger.With("file", unit.FileName).With("contract", unit.ContractName)
	log.Info("starting contract compilation")

	if unit.FileName == "" || unit.ContractName == "" {
		return nil, failures.New(failures.KindCompilation, opCompile, "source unit needs a file name and a contract name")
	}

	version, err := c.service.Version(ctx)
	if err != nil {
		return nil, failures.Wrap(failures.KindCompilation, opCompile, fmt.Errorf("failed to get compiler version: %w", err))
	}

	input := &Input{
		Language: languageSolidity,
		Sources: map[string]InputSource{
			unit.FileName: {Content: unit.Content},
		},
		Settings: c.settings,
	}

	output, err := c.service.Compile(ctx, input)
	if err != nil {
		return nil, failures.Wrap(failures.KindCompilation, opCompile, fmt.Errorf("compiler service failed: %w", err))
	}

	var fatal, warnings []failures.Diagnostic
	for _, d := range output.Errors {
		if d.IsFatal() {
			fatal = append(fatal, d)
			continue
		}
		warnings = append(warnings, d)
		log.With("type", d.Type).With("message", d.Message).Warn("compiler reported a warning")
	}

	if len(fatal) > 0 {
		log.With("errors", len(fatal)).Error("compilation failed")
		return nil, &failures.Error{
			Kind:        failures.KindCompilation,
			Op:          opCompile,
			Detail:      fmt.Sprintf("%d fatal diagnostic(s)", len(fatal)),
			Diagnostics: output.Errors,
		}
	}

	compiled, found := selectContract(output, unit.ContractName)
	if !found {
		return nil, failures.New(failures.KindArtifactNotFound, opCompile,
			fmt.Sprintf("contract %s not found in compiler output (available: %s)", unit.ContractName, strings.Join(contractNames(output), ", ")))
	}

	bytecodeHex := strings.TrimPrefix(strings.TrimSpace(compiled.EVM.Bytecode.Object), "0x")
	if bytecodeHex == "" {
		return nil, failures.New(failures.KindArtifactNotFound, opCompile,
			fmt.Sprintf("contract %s has no deployable bytecode (abstract contract or interface)", unit.ContractName))
	}

	bytecode, err := hex.DecodeString(bytecodeHex)
	if err != nil {
		return nil, failures.Wrap(failures.KindCompilation, opCompile, fmt.Errorf("failed to decode bytecode of %s (unlinked libraries?): %w", unit.ContractName, err))
	}

	artifact, err := NewArtifact(unit.ContractName, bytecode, compiled.ABI)
	if err != nil {
		return nil, failures.Wrap(failures.KindCompilation, opCompile, err)
	}

	cacheKey, err := c.cacheKey(unit, version)
	if err != nil {
		return nil, err
	}

	artifact.SourceHash = unit.Hash()
	artifact.CacheKey = cacheKey
	artifact.CompilerVersion = version
	artifact.Warnings = warnings

	log.
		With("bytecode_size", len(artifact.Bytecode)).
		With("functions", len(artifact.Functions)).
		With("warnings", len(warnings)).
		Info("contract compiled successfully")

	return artifact, nil
}

// selectContract looks the contract up across every file of the output. Files are visited in
// sorted order so the pick is stable if two files declare the same name.
func selectContract(output *Output, name string) (OutputContract, bool) {
	files := make([]string, 0, len(output.Contracts))
	for file := range output.Contracts {
		files = append(files, file)
	}
	slices.Sort(files)

	for _, file := range files {
		if contract, ok := output.Contracts[file][name]; ok {
			return contract, true
		}
	}
	return OutputContract{}, false
}

func contractNames(output *Output) []string {
	var names []string
	for _, contracts := range output.Contracts {
		for name := range contracts {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
