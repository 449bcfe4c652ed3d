package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/compose-network/contract-pipeline/configs"
	"github.com/compose-network/contract-pipeline/internal/compiler"
	"github.com/compose-network/contract-pipeline/internal/deployer"
	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/infra/docker"
	"github.com/compose-network/contract-pipeline/internal/network"
	"github.com/compose-network/contract-pipeline/internal/proxy"
	"github.com/compose-network/contract-pipeline/internal/sender"
	"github.com/compose-network/contract-pipeline/internal/store"
	"github.com/compose-network/contract-pipeline/internal/transactor"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// env holds the pipeline components one command invocation works with.
type env struct {
	cfg         configs.Config
	conn        *network.Conn
	transactor  *transactor.Transactor
	artifacts   *store.Artifacts
	deployments *store.Deployments
	closers     []func()
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// connect dials the configured network.
func connect(ctx context.Context, cfg configs.Config) (*env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := network.Dial(ctx, cfg.Network.RPCURL, network.Options{
		CallTimeout:    cfg.Network.CallTimeout,
		ReceiptTimeout: cfg.Network.ReceiptTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:         cfg,
		conn:        conn,
		transactor:  transactor.New(conn, transactor.Options{GasMarginPercent: cfg.Network.GasMarginPercent}),
		artifacts:   store.NewArtifacts(cfg.Store.ArtifactsDir),
		deployments: store.NewDeployments(cfg.Store.DeploymentsFile),
		closers:     []func(){conn.Close},
	}, nil
}

// newCompiler builds the configured compiler backend. The returned func releases it.
func newCompiler(cfg configs.Compiler) (*compiler.Compiler, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	opts := compiler.Options{
		OptimizerEnabled: cfg.Optimizer,
		OptimizerRuns:    cfg.Runs,
		EVMVersion:       cfg.EVMVersion,
	}

	if cfg.Backend == configs.CompilerBackendLocal {
		return compiler.NewCompiler(compiler.NewSolcExec(cfg.SolcPath), opts), func() {}, nil
	}

	client, err := docker.New()
	if err != nil {
		return nil, nil, err
	}
	closeClient := func() {
		if err := client.Close(); err != nil {
			slog.With("err", err.Error()).Warn("failed to close docker client")
		}
	}
	return compiler.NewCompiler(compiler.NewSolcDocker(client, cfg.Image), opts), closeClient, nil
}

func (e *env) sender() (*sender.Sender, error) {
	if err := e.cfg.Sender.RequireSender(); err != nil {
		return nil, err
	}
	return sender.FromPrivateKey(e.cfg.Sender.PrivateKey)
}

// secondSender returns nil when no second key is configured.
func (e *env) secondSender() (*sender.Sender, error) {
	if strings.TrimSpace(e.cfg.Sender.SecondPrivateKey) == "" {
		return nil, nil
	}
	return sender.FromPrivateKey(e.cfg.Sender.SecondPrivateKey)
}

func (e *env) deployer() *deployer.Deployer {
	return deployer.NewDeployer(e.transactor, e.deployments)
}

// contract binds the recorded deployment of name. The stored artifact, when present, supplies
// the declaration order of the functions.
func (e *env) contract(ctx context.Context, name string) (*proxy.Contract, error) {
	record, err := e.deployments.Load(name)
	if err != nil {
		return nil, err
	}

	chainID, err := e.conn.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if chainID.Uint64() != record.ChainID {
		return nil, fmt.Errorf("%s was deployed on chain %d but the endpoint serves chain %s", name, record.ChainID, chainID)
	}

	parsed, err := abi.JSON(strings.NewReader(string(record.ABI)))
	if err != nil {
		return nil, failures.Wrap(failures.KindDecoding, "load_deployment", fmt.Errorf("failed to parse recorded ABI of %s: %w", name, err))
	}

	ref := deployer.DeployedContractRef{
		ContractName: name,
		Address:      record.Address,
		ABI:          parsed,
		ChainID:      record.ChainID,
		TxHash:       record.TxHash,
		BlockNumber:  record.BlockNumber,
	}

	if artifact, err := e.artifacts.Load(name); err == nil {
		return proxy.New(ref, e.transactor, artifact.Functions...), nil
	}
	return proxy.New(ref, e.transactor), nil
}
