package walkthrough

import (
	"context"
	"fmt"

	"github.com/compose-network/contract-pipeline/internal/compiler"
	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/logger"
)

// ArtifactStore keeps compiled artifacts between runs.
type ArtifactStore interface {
	Load(name string) (*compiler.CompiledArtifact, error)
	Save(artifact *compiler.CompiledArtifact) error
	CacheKey(name string) (string, error)
}

// Build returns the stored artifact of unit when its cache key still matches and compiles and
// stores a fresh one otherwise. cached reports which of the two happened.
func Build(ctx context.Context, c *compiler.Compiler, artifacts ArtifactStore, unit compiler.SourceUnit) (artifact *compiler.CompiledArtifact, cached bool, err error) {
	log := logger.Named("build").With("contract", unit.ContractName)

	key, err := c.CacheKey(ctx, unit)
	if err != nil {
		return nil, false, err
	}

	storedKey, err := artifacts.CacheKey(unit.ContractName)
	if err != nil {
		return nil, false, err
	}

	if storedKey == key {
		artifact, err = artifacts.Load(unit.ContractName)
		switch {
		case err == nil:
			log.With("cache_key", key).Info("artifact is up to date, skipping compilation")
			return artifact, true, nil
		case !failures.Is(err, failures.KindArtifactNotFound):
			return nil, false, err
		}
		log.With("err", err.Error()).Warn("stored artifact is incomplete, recompiling")
	}

	artifact, err = c.Compile(ctx, unit)
	if err != nil {
		return nil, false, err
	}

	if err := artifacts.Save(artifact); err != nil {
		return nil, false, fmt.Errorf("failed to store artifact of %s: %w", unit.ContractName, err)
	}

	log.With("cache_key", artifact.CacheKey).Info("artifact stored")
	return artifact, false, nil
}
