package transactor

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/network"
	"github.com/compose-network/contract-pipeline/internal/sender"
	"github.com/compose-network/contract-pipeline/internal/testutil"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bigOne() *big.Int {
	return big.NewInt(1)
}

func newTransactor(t *testing.T) (*Transactor, *testutil.Chain) {
	t.Helper()
	chain := testutil.NewChain(t, 100*time.Millisecond)
	conn := network.New(chain.Client(), network.Options{ReceiptTimeout: 30 * time.Second})
	return New(conn, Options{GasMarginPercent: DefaultGasMarginPercent}), chain
}

func TestExecute_RequiresSender(t *testing.T) {
	tr := New(network.New(nil, network.Options{}), Options{})

	_, err := tr.Execute(context.Background(), nil, Request{Op: "transfer"})
	assert.True(t, failures.Is(err, failures.KindEncoding))
}

func TestExecute_Transfer(t *testing.T) {
	tr, chain := newTransactor(t)
	ctx := context.Background()

	from := sender.New(sender.NewKeySignerFromKey(chain.Keys[0]))
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	value := big.NewInt(params.Ether)

	result, err := tr.Execute(ctx, from, Request{Op: "transfer", To: &to, Value: value})
	require.NoError(t, err)

	assert.Equal(t, uint64(21000), result.GasEstimated)
	assert.Equal(t, uint64(25200), result.GasLimit)
	assert.Equal(t, uint64(21000), result.GasUsed)
	assert.Equal(t, result.TxHash, result.Receipt.TxHash)

	balance, err := tr.Conn().Balance(ctx, to, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, value.Cmp(balance))
}

func TestExecute_ExplicitGasLimitSkipsEstimation(t *testing.T) {
	tr, chain := newTransactor(t)

	from := sender.New(sender.NewKeySignerFromKey(chain.Keys[0]))
	to := chain.Address(1)

	result, err := tr.Execute(context.Background(), from, Request{Op: "transfer", To: &to, Value: bigOne(), GasLimit: 30000})
	require.NoError(t, err)
	assert.Zero(t, result.GasEstimated)
	assert.Equal(t, uint64(30000), result.GasLimit)
}

func TestCall_NoCode(t *testing.T) {
	tr, _ := newTransactor(t)

	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	out, err := tr.Call(context.Background(), "get", ethereum.CallMsg{To: &to, Data: []byte{0x6d, 0x4c, 0xe6, 0x3c}}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// stalledNonces never answers a nonce lookup until its context ends.
type stalledNonces struct {
	network.Backend
}

func (stalledNonces) PendingNonceAt(ctx context.Context, _ common.Address) (uint64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestExecute_NonceLookupIsBounded(t *testing.T) {
	chain := testutil.NewChain(t, 0)
	conn := network.New(stalledNonces{Backend: chain.Client()}, network.Options{CallTimeout: 200 * time.Millisecond})
	tr := New(conn, Options{})

	from := sender.New(sender.NewKeySignerFromKey(chain.Keys[0]))
	to := chain.Address(1)

	done := make(chan error, 1)
	go func() {
		_, err := tr.Execute(context.Background(), from, Request{Op: "transfer", To: &to, Value: bigOne()})
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, failures.Is(err, failures.KindTimeout), err.Error())
	case <-time.After(5 * time.Second):
		t.Fatal("transfer still blocked on the nonce lookup")
	}
}

func TestExecute_ReceiptTimeout(t *testing.T) {
	chain := testutil.NewChain(t, 0)
	conn := network.New(chain.Client(), network.Options{ReceiptTimeout: 1500 * time.Millisecond})
	tr := New(conn, Options{GasMarginPercent: DefaultGasMarginPercent})

	from := sender.New(sender.NewKeySignerFromKey(chain.Keys[0]))
	to := chain.Address(1)

	_, err := tr.Execute(context.Background(), from, Request{Op: "transfer", To: &to, Value: bigOne()})
	require.Error(t, err)
	assert.True(t, failures.Is(err, failures.KindTimeout), err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCall_RevertCarriesReason(t *testing.T) {
	tr, chain := newTransactor(t)
	ctx := context.Background()

	parsed, err := abi.JSON(strings.NewReader(testutil.StorageABI))
	require.NoError(t, err)

	creation := append(testutil.StorageBytecode(), common.LeftPadBytes(bigOne().Bytes(), 32)...)
	owner := sender.New(sender.NewKeySignerFromKey(chain.Keys[0]))
	deployed, err := tr.Execute(ctx, owner, Request{Op: "deploy", Data: creation})
	require.NoError(t, err)

	contract := deployed.Receipt.ContractAddress
	_, err = tr.Call(ctx, "withdraw", ethereum.CallMsg{
		From: chain.Address(1),
		To:   &contract,
		Data: parsed.Methods["withdraw"].ID,
	}, nil)
	require.Error(t, err)
	assert.True(t, failures.Is(err, failures.KindCallReverted), err.Error())
	reason, ok := failures.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, testutil.WithdrawReason, reason)
}
