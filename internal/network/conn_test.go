package network

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/testutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	conn := New(nil, Options{})
	assert.Equal(t, DefaultReceiptTimeout, conn.ReceiptTimeout())
	assert.Equal(t, DefaultCallTimeout, conn.callTimeout)

	conn = New(nil, Options{CallTimeout: time.Second, ReceiptTimeout: 5 * time.Second})
	assert.Equal(t, 5*time.Second, conn.ReceiptTimeout())
	assert.Equal(t, time.Second, conn.callTimeout)
}

func TestConn_Simulated(t *testing.T) {
	chain := testutil.NewChain(t, time.Second)
	conn := New(chain.Client(), Options{})
	ctx := context.Background()

	chainID, err := conn.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1337), chainID.Int64())

	balance, err := conn.Balance(ctx, chain.Address(0), nil)
	require.NoError(t, err)
	expected := new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))
	assert.Equal(t, 0, expected.Cmp(balance))

	code, err := conn.Code(ctx, common.HexToAddress("0x00000000000000000000000000000000000000aa"))
	require.NoError(t, err)
	assert.Empty(t, code)

	_, err = conn.Accounts(ctx)
	assert.ErrorIs(t, err, ErrAccountsUnsupported)
}

func TestDial_UnsupportedScheme(t *testing.T) {
	_, err := Dial(context.Background(), "ftp://127.0.0.1:8545", Options{})
	require.Error(t, err)
	assert.True(t, failures.Is(err, failures.KindSubmission))
}

func TestWaitForRPC_GivesUp(t *testing.T) {
	err := WaitForRPC(context.Background(), "http://127.0.0.1:1", 2, 10*time.Millisecond)
	assert.ErrorContains(t, err, "timed out waiting for RPC")
}

func TestWaitForRPC_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForRPC(ctx, "http://127.0.0.1:1", 5, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}
