// Package store persists compiled artifacts and deployment records between runs.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/compose-network/contract-pipeline/internal/compiler"
	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/infra/filesystem"
	fsjson "github.com/compose-network/contract-pipeline/internal/infra/filesystem/json"
	"github.com/compose-network/contract-pipeline/internal/logger"
)

const (
	bytecodeSuffix = ".bin"
	abiSuffix      = ".abi.json"
	metaSuffix     = ".meta.json"
)

type (
	// Artifacts keeps one bytecode file, one ABI file and one metadata file per contract name.
	Artifacts struct {
		dir    string
		reader filesystem.Reader
		writer filesystem.Writer
		logger *slog.Logger
	}

	artifactMeta struct {
		ContractName    string `json:"contractName"`
		CacheKey        string `json:"cacheKey"`
		SourceHash      string `json:"sourceHash"`
		CompilerVersion string `json:"compilerVersion"`
	}
)

func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{
		dir:    dir,
		reader: fsjson.NewReader(),
		writer: fsjson.NewWriter(),
		logger: logger.Named("artifact_store"),
	}
}

func (a *Artifacts) path(name, suffix string) string {
	return filepath.Join(a.dir, name+suffix)
}

// Save writes the artifact. The metadata file goes last so a crash never leaves a record that
// looks complete.
func (a *Artifacts) Save(artifact *compiler.CompiledArtifact) error {
	name := artifact.ContractName
	if err := a.writer.WriteBytes(a.path(name, bytecodeSuffix), artifact.Bytecode); err != nil {
		return fmt.Errorf("failed to write bytecode of %s: %w", name, err)
	}
	if err := a.writer.WriteBytes(a.path(name, abiSuffix), append([]byte(artifact.RawABI), '\n')); err != nil {
		return fmt.Errorf("failed to write ABI of %s: %w", name, err)
	}

	meta := artifactMeta{
		ContractName:    name,
		CacheKey:        artifact.CacheKey,
		SourceHash:      artifact.SourceHash,
		CompilerVersion: artifact.CompilerVersion,
	}
	if err := a.writer.WriteJSON(a.path(name, metaSuffix), meta); err != nil {
		return fmt.Errorf("failed to write metadata of %s: %w", name, err)
	}

	a.logger.With("contract", name).With("dir", a.dir).Info("artifact saved")
	return nil
}

// Load reads the artifact stored under name.
func (a *Artifacts) Load(name string) (*compiler.CompiledArtifact, error) {
	var meta artifactMeta
	if err := a.reader.ReadJSON(a.path(name, metaSuffix), &meta); err != nil {
		return nil, a.loadError(name, err)
	}

	bytecode, err := a.reader.ReadBytes(a.path(name, bytecodeSuffix))
	if err != nil {
		return nil, a.loadError(name, err)
	}

	rawABI, err := a.reader.ReadBytes(a.path(name, abiSuffix))
	if err != nil {
		return nil, a.loadError(name, err)
	}

	artifact, err := compiler.NewArtifact(name, bytecode, rawABI)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %s: %w", name, err)
	}
	artifact.CacheKey = meta.CacheKey
	artifact.SourceHash = meta.SourceHash
	artifact.CompilerVersion = meta.CompilerVersion

	return artifact, nil
}

// CacheKey returns the cache key of the stored artifact, or "" when none is stored.
func (a *Artifacts) CacheKey(name string) (string, error) {
	var meta artifactMeta
	if err := a.reader.ReadJSON(a.path(name, metaSuffix), &meta); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read metadata of %s: %w", name, err)
	}
	return meta.CacheKey, nil
}

func (a *Artifacts) loadError(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return failures.Wrap(failures.KindArtifactNotFound, "load_artifact", fmt.Errorf("no stored artifact for %s in %s: %w", name, a.dir, err))
	}
	return fmt.Errorf("failed to load artifact %s: %w", name, err)
}
