package deployer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/contract-pipeline/internal/compiler"
	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/logger"
	"github.com/compose-network/contract-pipeline/internal/sender"
	"github.com/compose-network/contract-pipeline/internal/store"
	"github.com/compose-network/contract-pipeline/internal/transactor"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const opDeploy = "deploy"

type (
	// DeployedContractRef points at one deployed contract instance. The address is whatever the
	// network assigned; it is never chosen here.
	DeployedContractRef struct {
		ContractName string
		Address      common.Address
		ABI          abi.ABI
		ChainID      uint64
		TxHash       common.Hash
		BlockNumber  uint64
	}

	Deployment struct {
		Ref    DeployedContractRef
		Result *transactor.Result
	}

	Options struct {
		// Value is sent along with a payable constructor.
		Value *big.Int
		// GasLimit replaces estimation when set.
		GasLimit uint64
	}

	// RecordWriter persists deployments for later runs.
	RecordWriter interface {
		Save(record store.DeploymentRecord) error
	}

	// Deployer deploys compiled artifacts
	Deployer struct {
		transactor *transactor.Transactor
		records    RecordWriter
		logger     *slog.Logger
	}
)

// NewDeployer creates a deployer. records may be nil when nothing should be persisted.
func NewDeployer(tr *transactor.Transactor, records RecordWriter) *Deployer {
	return &Deployer{
		transactor: tr,
		records:    records,
		logger:     logger.Named("contracts_deployer"),
	}
}

// Deploy deploys artifact with the given constructor arguments.
func (d *Deployer) Deploy(ctx context.Context, artifact *compiler.CompiledArtifact, from *sender.Sender, constructorArgs ...any) (*Deployment, error) {
	return d.DeployWithOptions(ctx, artifact, from, Options{}, constructorArgs...)
}

// DeployWithOptions encodes the constructor arguments, simulates the creation, submits it and
// waits for the receipt. Encoding problems are reported before anything reaches the network.
// When recording the deployment fails, the deployment is returned together with the error.
func (d *Deployer) DeployWithOptions(ctx context.Context, artifact *compiler.CompiledArtifact, from *sender.Sender, opts Options, constructorArgs ...any) (*Deployment, error) {
	if from == nil {
		return nil, failures.New(failures.KindEncoding, opDeploy+" "+artifact.ContractName, "a deployment needs a sender")
	}

	data, err := encodeCreation(artifact, opts, constructorArgs)
	if err != nil {
		return nil, err
	}

	log := d.logger.With("contract", artifact.ContractName).With("deployer", from.Address().Hex())
	log.Info("deploying contract")

	result, err := d.transactor.Execute(ctx, from, transactor.Request{
		Op:       opDeploy + " " + artifact.ContractName,
		Data:     data,
		Value:    opts.Value,
		GasLimit: opts.GasLimit,
	})
	if err != nil {
		log.With("err", err.Error()).Error("contract deployment failed")
		return nil, err
	}

	receipt := result.Receipt
	deployment := &Deployment{
		Ref: DeployedContractRef{
			ContractName: artifact.ContractName,
			Address:      receipt.ContractAddress,
			ABI:          artifact.ABI,
			ChainID:      result.ChainID.Uint64(),
			TxHash:       result.TxHash,
			BlockNumber:  receipt.BlockNumber.Uint64(),
		},
		Result: result,
	}

	log.
		With("address", deployment.Ref.Address.Hex()).
		With("tx_hash", result.TxHash.Hex()).
		With("gas_estimated", result.GasEstimated).
		With("gas_used", result.GasUsed).
		Info("contract deployed")

	if d.records != nil {
		record := store.DeploymentRecord{
			ContractName: artifact.ContractName,
			Address:      deployment.Ref.Address,
			ChainID:      deployment.Ref.ChainID,
			TxHash:       result.TxHash,
			BlockNumber:  deployment.Ref.BlockNumber,
			Deployer:     from.Address(),
			GasEstimated: result.GasEstimated,
			GasUsed:      result.GasUsed,
			DeployedAt:   time.Now().UTC(),
			ABI:          store.CompactABI(artifact.RawABI),
		}
		if err := d.records.Save(record); err != nil {
			return deployment, fmt.Errorf("failed to record deployment of %s: %w", artifact.ContractName, err)
		}
	}

	return deployment, nil
}

func encodeCreation(artifact *compiler.CompiledArtifact, opts Options, args []any) ([]byte, error) {
	op := opDeploy + " " + artifact.ContractName
	if len(artifact.Bytecode) == 0 {
		return nil, failures.New(failures.KindEncoding, op, "artifact has no bytecode")
	}

	constructor := artifact.ABI.Constructor
	if len(constructor.Inputs) != len(args) {
		return nil, failures.New(failures.KindEncoding, op,
			fmt.Sprintf("constructor expects %d argument(s), got %d", len(constructor.Inputs), len(args)))
	}

	if opts.Value != nil && opts.Value.Sign() > 0 && !constructor.IsPayable() {
		return nil, failures.New(failures.KindEncoding, op, "constructor is not payable but a value was attached")
	}

	encoded, err := constructor.Inputs.Pack(args...)
	if err != nil {
		return nil, failures.Wrap(failures.KindEncoding, op, fmt.Errorf("failed to encode constructor arguments: %w", err))
	}

	data := make([]byte, 0, len(artifact.Bytecode)+len(encoded))
	data = append(data, artifact.Bytecode...)
	return append(data, encoded...), nil
}
