// Package testutil runs an in-process chain for tests that need real transactions.
package testutil

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
)

// Well known development keys, funded in every Chain.
const (
	DevKey0 = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	DevKey1 = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

type Chain struct {
	Backend *simulated.Backend
	Keys    []*ecdsa.PrivateKey
}

// NewChain starts a simulated chain that seals a block every interval until the test ends. A
// zero interval never seals, so submitted transactions stay pending.
func NewChain(t *testing.T, interval time.Duration) *Chain {
	t.Helper()

	alloc := types.GenesisAlloc{}
	keys := make([]*ecdsa.PrivateKey, 0, 2)
	for _, hexKey := range []string{DevKey0, DevKey1} {
		key, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			t.Fatalf("failed to parse dev key: %v", err)
		}
		keys = append(keys, key)
		alloc[crypto.PubkeyToAddress(key.PublicKey)] = types.Account{
			Balance: new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether)),
		}
	}

	backend := simulated.NewBackend(alloc)
	chain := &Chain{Backend: backend, Keys: keys}

	if interval <= 0 {
		t.Cleanup(func() { _ = backend.Close() })
		return chain
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				backend.Commit()
			}
		}
	}()

	t.Cleanup(func() {
		close(done)
		<-stopped
		_ = backend.Close()
	})

	return chain
}

func (c *Chain) Client() simulated.Client {
	return c.Backend.Client()
}

func (c *Chain) Address(i int) common.Address {
	return crypto.PubkeyToAddress(c.Keys[i].PublicKey)
}
