package deployer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/compose-network/contract-pipeline/internal/compiler"
	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/network"
	"github.com/compose-network/contract-pipeline/internal/sender"
	"github.com/compose-network/contract-pipeline/internal/store"
	"github.com/compose-network/contract-pipeline/internal/testutil"
	"github.com/compose-network/contract-pipeline/internal/transactor"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storageArtifact(t *testing.T) *compiler.CompiledArtifact {
	t.Helper()
	artifact, err := compiler.NewArtifact(testutil.StorageName, testutil.StorageBytecode(), testutil.RawStorageABI())
	require.NoError(t, err)
	return artifact
}

// offlineBackend fails the test on any network access.
type offlineBackend struct {
	network.Backend
}

func TestDeploy_EncodingFailsBeforeNetwork(t *testing.T) {
	tr := transactor.New(network.New(offlineBackend{}, network.Options{}), transactor.Options{})
	d := NewDeployer(tr, nil)
	from, err := sender.FromPrivateKey(testutil.DevKey0)
	require.NoError(t, err)

	artifact := storageArtifact(t)
	empty := *artifact
	empty.Bytecode = nil

	tests := []struct {
		name          string
		artifact      *compiler.CompiledArtifact
		opts          Options
		args          []any
		withoutSender bool
	}{
		{name: "missing argument", artifact: artifact},
		{name: "too many arguments", artifact: artifact, args: []any{big.NewInt(1), big.NewInt(2)}},
		{name: "wrong type", artifact: artifact, args: []any{"one"}},
		{name: "value to non-payable constructor", artifact: artifact, opts: Options{Value: big.NewInt(1)}, args: []any{big.NewInt(1)}},
		{name: "no bytecode", artifact: &empty, args: []any{big.NewInt(1)}},
		{name: "no sender", artifact: artifact, args: []any{big.NewInt(1)}, withoutSender: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deployFrom := from
			if tt.withoutSender {
				deployFrom = nil
			}
			_, err := d.DeployWithOptions(context.Background(), tt.artifact, deployFrom, tt.opts, tt.args...)
			require.Error(t, err)
			assert.True(t, failures.Is(err, failures.KindEncoding), err.Error())
		})
	}
}

func TestDeploy_StorageContract(t *testing.T) {
	chain := testutil.NewChain(t, 100*time.Millisecond)
	conn := network.New(chain.Client(), network.Options{ReceiptTimeout: 30 * time.Second})
	tr := transactor.New(conn, transactor.Options{GasMarginPercent: transactor.DefaultGasMarginPercent})

	records := store.NewDeployments(filepath.Join(t.TempDir(), "deployments.yaml"))
	d := NewDeployer(tr, records)
	from := sender.New(sender.NewKeySignerFromKey(chain.Keys[0]))
	ctx := context.Background()

	first, err := d.Deploy(ctx, storageArtifact(t), from, big.NewInt(1))
	require.NoError(t, err)

	ref := first.Ref
	assert.NotEqual(t, common.Address{}, ref.Address)
	assert.Equal(t, uint64(1337), ref.ChainID)
	assert.Equal(t, testutil.StorageName, ref.ContractName)
	assert.Equal(t, first.Result.TxHash, ref.TxHash)
	assert.NotZero(t, first.Result.GasEstimated)
	assert.LessOrEqual(t, first.Result.GasUsed, first.Result.GasLimit)

	code, err := conn.Code(ctx, ref.Address)
	require.NoError(t, err)
	assert.NotEmpty(t, code)

	record, err := records.Load(testutil.StorageName)
	require.NoError(t, err)
	assert.Equal(t, ref.Address, record.Address)
	assert.Equal(t, from.Address(), record.Deployer)
	assert.Equal(t, ref.BlockNumber, record.BlockNumber)

	second, err := d.Deploy(ctx, storageArtifact(t), from, big.NewInt(2))
	require.NoError(t, err)
	assert.NotEqual(t, ref.Address, second.Ref.Address)

	record, err = records.Load(testutil.StorageName)
	require.NoError(t, err)
	assert.Equal(t, second.Ref.Address, record.Address)
}

// chainIDOnce answers the first chain ID request and fails every later one.
type chainIDOnce struct {
	network.Backend
	calls atomic.Int32
}

func (b *chainIDOnce) ChainID(ctx context.Context) (*big.Int, error) {
	if b.calls.Add(1) > 1 {
		return nil, errors.New("connection reset")
	}
	return b.Backend.ChainID(ctx)
}

func TestDeploy_KeepsAddressWhenChainIDUnavailableAfterMining(t *testing.T) {
	chain := testutil.NewChain(t, 100*time.Millisecond)
	backend := &chainIDOnce{Backend: chain.Client()}
	conn := network.New(backend, network.Options{ReceiptTimeout: 30 * time.Second})
	tr := transactor.New(conn, transactor.Options{GasMarginPercent: transactor.DefaultGasMarginPercent})

	deployment, err := NewDeployer(tr, nil).Deploy(context.Background(), storageArtifact(t), sender.New(sender.NewKeySignerFromKey(chain.Keys[0])), big.NewInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, deployment.Ref.Address)
	assert.Equal(t, uint64(1337), deployment.Ref.ChainID)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestDeploy_RevertingConstructor(t *testing.T) {
	chain := testutil.NewChain(t, 100*time.Millisecond)
	conn := network.New(chain.Client(), network.Options{ReceiptTimeout: 30 * time.Second})
	tr := transactor.New(conn, transactor.Options{GasMarginPercent: transactor.DefaultGasMarginPercent})
	from := sender.New(sender.NewKeySignerFromKey(chain.Keys[0]))
	ctx := context.Background()

	_, err := NewDeployer(tr, nil).Deploy(ctx, storageArtifact(t), from, big.NewInt(0))
	require.Error(t, err)
	assert.True(t, failures.Is(err, failures.KindSimulation), err.Error())
	reason, ok := failures.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, testutil.InitialReason, reason)

	nonce, err := chain.Client().PendingNonceAt(ctx, from.Address())
	require.NoError(t, err)
	assert.Zero(t, nonce)
}
