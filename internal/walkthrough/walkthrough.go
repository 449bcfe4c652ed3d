// Package walkthrough runs the fixed compile, deploy and interact script against one network.
package walkthrough

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"

	"github.com/compose-network/contract-pipeline/internal/compiler"
	"github.com/compose-network/contract-pipeline/internal/deployer"
	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/logger"
	"github.com/compose-network/contract-pipeline/internal/proxy"
	"github.com/compose-network/contract-pipeline/internal/sender"
	"github.com/compose-network/contract-pipeline/internal/transactor"
	"github.com/ethereum/go-ethereum/common"
)

const (
	ContractName = "SimpleStorage"
	SourceFile   = "SimpleStorage.sol"
)

var (
	//go:embed contracts/SimpleStorage.sol
	simpleStorageSource string

	initialValue = big.NewInt(1)
	updatedValue = big.NewInt(42)
)

// Source is the contract the script deploys.
func Source() compiler.SourceUnit {
	return compiler.SourceUnit{
		FileName:     SourceFile,
		Content:      simpleStorageSource,
		ContractName: ContractName,
	}
}

type (
	Pipeline struct {
		Compiler   *compiler.Compiler
		Artifacts  ArtifactStore
		Deployer   *deployer.Deployer
		Transactor *transactor.Transactor
	}

	Accounts struct {
		Owner *sender.Sender
		// Other is optional. When set, it tries the owner-only withdraw.
		Other *sender.Sender
	}

	Options struct {
		// FundValue is sent to the contract's receive function. Zero skips funding.
		FundValue *big.Int
	}

	Report struct {
		Address         common.Address
		Cached          bool
		InitialValue    *big.Int
		UpdatedValue    *big.Int
		Events          []proxy.Event
		ContractBalance *big.Int
		// WithdrawRejection is the failure seen when Other called withdraw.
		WithdrawRejection error
		FinalBalance      *big.Int
	}
)

// Run compiles, deploys with 1, reads, sets 42, reads again, funds the contract, lets a second
// account attempt withdraw and finally withdraws as the owner.
func Run(ctx context.Context, p Pipeline, accounts Accounts, opts Options) (*Report, error) {
	log := logger.Named("walkthrough")
	if accounts.Owner == nil {
		return nil, errors.New("walkthrough needs an owner account")
	}

	artifact, cached, err := Build(ctx, p.Compiler, p.Artifacts, Source())
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", ContractName, err)
	}
	report := &Report{Cached: cached}

	deployment, err := p.Deployer.Deploy(ctx, artifact, accounts.Owner, initialValue)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", ContractName, err)
	}
	report.Address = deployment.Ref.Address
	log.With("address", report.Address.Hex()).Info("contract deployed")

	contract := proxy.New(deployment.Ref, p.Transactor, artifact.Functions...)

	if report.InitialValue, err = readValue(ctx, contract); err != nil {
		return nil, err
	}
	log.With("value", report.InitialValue).Info("initial value read")

	result, err := contract.Transact(ctx, accounts.Owner, proxy.TransactOpts{}, "set", updatedValue)
	if err != nil {
		return nil, fmt.Errorf("failed to set value: %w", err)
	}
	if report.Events, err = contract.DecodeLogs(result.Receipt); err != nil {
		return nil, err
	}

	if report.UpdatedValue, err = readValue(ctx, contract); err != nil {
		return nil, err
	}
	log.With("value", report.UpdatedValue).With("gas_used", result.GasUsed).Info("value updated")

	if opts.FundValue != nil && opts.FundValue.Sign() > 0 {
		if _, err := contract.Fund(ctx, accounts.Owner, opts.FundValue); err != nil {
			return nil, fmt.Errorf("failed to fund contract: %w", err)
		}
	}

	conn := p.Transactor.Conn()
	if report.ContractBalance, err = conn.Balance(ctx, report.Address, nil); err != nil {
		return nil, err
	}
	log.With("balance", report.ContractBalance).Info("contract balance read")

	if accounts.Other != nil {
		_, err := contract.Transact(ctx, accounts.Other, proxy.TransactOpts{}, "withdraw")
		if err == nil {
			return nil, errors.New("withdraw by a non-owner account unexpectedly succeeded")
		}
		if !failures.IsRejected(err) {
			return nil, fmt.Errorf("withdraw by a non-owner account failed unexpectedly: %w", err)
		}
		report.WithdrawRejection = err
		reason, _ := failures.ReasonOf(err)
		log.With("reason", reason).Info("withdraw by a non-owner account was rejected")
	}

	if _, err := contract.Transact(ctx, accounts.Owner, proxy.TransactOpts{}, "withdraw"); err != nil {
		return nil, fmt.Errorf("failed to withdraw as owner: %w", err)
	}
	if report.FinalBalance, err = conn.Balance(ctx, report.Address, nil); err != nil {
		return nil, err
	}
	log.With("balance", report.FinalBalance).Info("walkthrough finished")

	return report, nil
}

func readValue(ctx context.Context, contract *proxy.Contract) (*big.Int, error) {
	values, err := contract.Call(ctx, "get")
	if err != nil {
		return nil, fmt.Errorf("failed to read value: %w", err)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, failures.New(failures.KindDecoding, "get", fmt.Sprintf("unexpected result type %T", values[0]))
	}
	return value, nil
}
