// Package transactor implements the simulate, submit and await-receipt sequence shared by
// contract deployment and state changing contract calls, and the read-only call path.
package transactor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/logger"
	"github.com/compose-network/contract-pipeline/internal/network"
	"github.com/compose-network/contract-pipeline/internal/sender"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const DefaultGasMarginPercent = 20

type (
	// Request is a pending state changing call. A nil To creates a contract.
	Request struct {
		Op    string
		To    *common.Address
		Data  []byte
		Value *big.Int
		// GasLimit skips estimation when set.
		GasLimit uint64
	}

	// Result reports the mined transaction together with the budget that was estimated and the
	// budget that was actually consumed.
	Result struct {
		ChainID      *big.Int
		TxHash       common.Hash
		Receipt      *types.Receipt
		GasEstimated uint64
		GasLimit     uint64
		GasUsed      uint64
	}

	Options struct {
		// GasMarginPercent inflates the estimate before submission.
		GasMarginPercent uint64
	}

	Transactor struct {
		conn             *network.Conn
		gasMarginPercent uint64
		logger           *slog.Logger
	}
)

func New(conn *network.Conn, opts Options) *Transactor {
	return &Transactor{
		conn:             conn,
		gasMarginPercent: opts.GasMarginPercent,
		logger:           logger.Named("transactor"),
	}
}

func (t *Transactor) Conn() *network.Conn {
	return t.conn
}

// Execute simulates req, submits it signed by from and blocks until it is mined. Nothing is
// retried: a transaction that is not observed in time yields a timeout failure and may still be
// mined later. A mined revert returns the result together with the revert failure.
func (t *Transactor) Execute(ctx context.Context, from *sender.Sender, req Request) (*Result, error) {
	if from == nil {
		return nil, failures.New(failures.KindEncoding, req.Op, "a state changing call needs a sender")
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	log := t.logger.With("op", req.Op).With("from", from.Address().Hex())

	chainID, err := t.conn.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{
		From:  from.Address(),
		To:    req.To,
		Value: value,
		Data:  req.Data,
	}

	var estimated uint64
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		estimated, err = t.estimate(ctx, req.Op, msg)
		if err != nil {
			return nil, err
		}
		gasLimit = estimated + estimated*t.gasMarginPercent/100
		log.With("estimated", estimated).With("gas_limit", gasLimit).Debug("gas estimated")
	}

	fees, err := t.suggestFees(ctx)
	if err != nil {
		return nil, failures.FromTransport(req.Op, err)
	}

	backend := t.conn.Backend()
	tx, err := from.Submit(ctx, boundedNonces{conn: t.conn}, chainID,
		func(nonce uint64) (*types.Transaction, error) {
			return fees.build(chainID, nonce, req.To, value, gasLimit, req.Data), nil
		},
		func(ctx context.Context, tx *types.Transaction) error {
			ctx, cancel := t.conn.CallContext(ctx)
			defer cancel()
			return backend.SendTransaction(ctx, tx)
		},
	)
	if err != nil {
		return nil, failures.FromTransport(req.Op, fmt.Errorf("failed to submit transaction: %w", err))
	}

	log.With("tx_hash", tx.Hash().Hex()).With("nonce", tx.Nonce()).Info("transaction sent")

	receipt, err := t.waitMined(ctx, tx)
	if err != nil {
		return nil, failures.FromTransport(req.Op, fmt.Errorf("transaction %s not confirmed: %w", tx.Hash().Hex(), err))
	}

	result := &Result{
		ChainID:      chainID,
		TxHash:       tx.Hash(),
		Receipt:      receipt,
		GasEstimated: estimated,
		GasLimit:     gasLimit,
		GasUsed:      receipt.GasUsed,
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		log.With("tx_hash", tx.Hash().Hex()).With("block", receipt.BlockNumber).Warn("transaction reverted")
		return result, t.minedRevert(ctx, req.Op, msg, result)
	}

	log.
		With("tx_hash", tx.Hash().Hex()).
		With("block", receipt.BlockNumber).
		With("gas_used", receipt.GasUsed).
		Info("transaction mined")

	return result, nil
}

// Call runs a stateless query at blockNumber, nil meaning latest.
func (t *Transactor) Call(ctx context.Context, op string, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel := t.conn.CallContext(ctx)
	defer cancel()

	out, err := t.conn.Backend().CallContract(ctx, msg, blockNumber)
	if err != nil {
		if rev, ok := decodeRevert(err); ok {
			return nil, rejected(failures.KindCallReverted, op, rev, err)
		}
		return nil, failures.FromTransport(op, fmt.Errorf("call failed: %w", err))
	}
	return out, nil
}

func (t *Transactor) estimate(ctx context.Context, op string, msg ethereum.CallMsg) (uint64, error) {
	ctx, cancel := t.conn.CallContext(ctx)
	defer cancel()

	gas, err := t.conn.Backend().EstimateGas(ctx, msg)
	if err != nil {
		if rev, ok := decodeRevert(err); ok {
			return 0, rejected(failures.KindSimulation, op, rev, err)
		}
		return 0, failures.FromTransport(op, fmt.Errorf("failed to estimate gas: %w", err))
	}
	return gas, nil
}

func (t *Transactor) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.conn.ReceiptTimeout())
	defer cancel()

	return bind.WaitMined(ctx, t.conn.Backend(), tx)
}

// minedRevert replays the reverted call on the parent block with the same gas limit to recover
// the reason. The replay is best effort; the revert itself is reported either way.
func (t *Transactor) minedRevert(ctx context.Context, op string, msg ethereum.CallMsg, result *Result) error {
	receipt := result.Receipt
	failure := failures.New(failures.KindRevert, op, fmt.Sprintf("transaction %s reverted in block %s (gas estimated %d, limit %d, used %d)",
		receipt.TxHash.Hex(), receipt.BlockNumber, result.GasEstimated, result.GasLimit, result.GasUsed))
	if receipt.BlockNumber == nil || receipt.BlockNumber.Sign() == 0 {
		return failure
	}

	msg.Gas = result.GasLimit
	parent := new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))

	callCtx, cancel := t.conn.CallContext(ctx)
	defer cancel()

	_, err := t.conn.Backend().CallContract(callCtx, msg, parent)
	if rev, ok := decodeRevert(err); ok && rev.hasReason {
		failure = failure.WithReason(rev.reason)
	}
	return failure
}

// boundedNonces applies the per call timeout to the nonce lookup done under the sender lock.
type boundedNonces struct {
	conn *network.Conn
}

func (b boundedNonces) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := b.conn.CallContext(ctx)
	defer cancel()
	return b.conn.Backend().PendingNonceAt(ctx, account)
}

func rejected(kind failures.Kind, op string, rev revert, cause error) *failures.Error {
	failure := &failures.Error{Kind: kind, Op: op, Detail: rev.detail(), Err: cause}
	if rev.hasReason {
		failure = failure.WithReason(rev.reason)
	}
	return failure
}

type fees struct {
	gasPrice  *big.Int
	gasTipCap *big.Int
	gasFeeCap *big.Int
}

// suggestFees prices a dynamic fee transaction when the chain has a base fee and a legacy one
// otherwise.
func (t *Transactor) suggestFees(ctx context.Context) (*fees, error) {
	ctx, cancel := t.conn.CallContext(ctx)
	defer cancel()

	backend := t.conn.Backend()
	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		return &fees{gasPrice: gasPrice}, nil
	}

	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	return &fees{gasTipCap: tip, gasFeeCap: feeCap}, nil
}

func (f *fees) build(chainID *big.Int, nonce uint64, to *common.Address, value *big.Int, gas uint64, data []byte) *types.Transaction {
	if f.gasPrice != nil {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       to,
			Value:    value,
			Gas:      gas,
			GasPrice: f.gasPrice,
			Data:     data,
		})
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		To:        to,
		Value:     value,
		Gas:       gas,
		GasTipCap: f.gasTipCap,
		GasFeeCap: f.gasFeeCap,
		Data:      data,
	})
}
