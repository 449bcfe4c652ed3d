// Package network provides the connection handle every pipeline component receives
// explicitly. A Conn wraps either a JSON-RPC endpoint or any in-process Backend, so several
// isolated connections can coexist in one process.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	DefaultCallTimeout    = 15 * time.Second
	DefaultReceiptTimeout = 2 * time.Minute
)

// ErrAccountsUnsupported is returned by Accounts when the backend has no raw RPC access.
var ErrAccountsUnsupported = errors.New("account enumeration is not supported by this backend")

type (
	// Backend is the subset of the JSON-RPC surface the pipeline needs. *ethclient.Client and the
	// go-ethereum simulated client both satisfy it.
	Backend interface {
		ChainID(ctx context.Context) (*big.Int, error)
		BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
		CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
		PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
		HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
		SuggestGasPrice(ctx context.Context) (*big.Int, error)
		SuggestGasTipCap(ctx context.Context) (*big.Int, error)
		EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
		SendTransaction(ctx context.Context, tx *types.Transaction) error
		TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
		CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	}

	Options struct {
		// CallTimeout bounds every single RPC round trip.
		CallTimeout time.Duration
		// ReceiptTimeout bounds the wait for a transaction to be mined.
		ReceiptTimeout time.Duration
	}

	Conn struct {
		backend        Backend
		rpc            *rpc.Client
		callTimeout    time.Duration
		receiptTimeout time.Duration
		logger         *slog.Logger
	}
)

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.ReceiptTimeout <= 0 {
		o.ReceiptTimeout = DefaultReceiptTimeout
	}
	return o
}

// New wraps an existing backend, typically an in-memory simulated chain.
func New(backend Backend, opts Options) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		backend:        backend,
		callTimeout:    opts.CallTimeout,
		receiptTimeout: opts.ReceiptTimeout,
		logger:         logger.Named("network"),
	}
}

// Dial connects to a JSON-RPC endpoint.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	opts = opts.withDefaults()

	dialCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(dialCtx, url)
	if err != nil {
		return nil, failures.FromTransport("dial", fmt.Errorf("failed to connect to %s: %w", url, err))
	}

	conn := New(ethclient.NewClient(rpcClient), opts)
	conn.rpc = rpcClient
	conn.logger = conn.logger.With("url", url)
	conn.logger.Debug("connected to network endpoint")

	return conn, nil
}

// Close releases the underlying RPC client, if the connection owns one.
func (c *Conn) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *Conn) Backend() Backend {
	return c.backend
}

func (c *Conn) ReceiptTimeout() time.Duration {
	return c.receiptTimeout
}

// CallContext derives the context for a single RPC round trip.
func (c *Conn) CallContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *Conn) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.CallContext(ctx)
	defer cancel()

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, failures.FromTransport("chain_id", fmt.Errorf("failed to get chain ID: %w", err))
	}
	return chainID, nil
}

// Balance returns the balance of account at blockNumber, nil meaning latest.
func (c *Conn) Balance(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	ctx, cancel := c.CallContext(ctx)
	defer cancel()

	balance, err := c.backend.BalanceAt(ctx, account, blockNumber)
	if err != nil {
		return nil, failures.FromTransport("balance", fmt.Errorf("failed to get balance of %s: %w", account.Hex(), err))
	}
	return balance, nil
}

// Code returns the runtime bytecode stored at account.
func (c *Conn) Code(ctx context.Context, account common.Address) ([]byte, error) {
	ctx, cancel := c.CallContext(ctx)
	defer cancel()

	code, err := c.backend.CodeAt(ctx, account, nil)
	if err != nil {
		return nil, failures.FromTransport("code", fmt.Errorf("failed to get code at %s: %w", account.Hex(), err))
	}
	return code, nil
}

// Accounts lists the accounts managed by the node (eth_accounts).
func (c *Conn) Accounts(ctx context.Context) ([]common.Address, error) {
	if c.rpc == nil {
		return nil, ErrAccountsUnsupported
	}

	ctx, cancel := c.CallContext(ctx)
	defer cancel()

	var accounts []common.Address
	if err := c.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, failures.FromTransport("accounts", fmt.Errorf("failed to list accounts: %w", err))
	}
	return accounts, nil
}
